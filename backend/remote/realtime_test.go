package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/oauth2"

	"priorityforge/backend"
)

// fakeRealtime accepts one socket, checks the join, replies ok and sends
// frames.
func fakeRealtime(t *testing.T, frames []string, joined chan<- joinPayload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RealtimePath || r.URL.Query().Get("apikey") != "anon-key" {
			t.Errorf("dial = %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read join: %v", err)
			return
		}
		var msg phoenixMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Errorf("decode join: %v", err)
			return
		}
		if msg.Event != "phx_join" || msg.Topic != "realtime:tasks-changes-user-1" || msg.Ref == "" {
			t.Errorf("join frame = %+v", msg)
		}
		var join joinPayload
		_ = json.Unmarshal(msg.Payload, &join)
		joined <- join

		reply := `{"topic":"` + msg.Topic + `","event":"phx_reply","ref":"` + msg.Ref + `","payload":{"status":"ok","response":{}}}`
		if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func change(kind, record string) string {
	field := "record"
	if kind == "DELETE" {
		field = "old_record"
	}
	return `{"topic":"realtime:tasks-changes-user-1","event":"postgres_changes","payload":{"data":{"type":"` +
		kind + `","` + field + `":` + record + `}}}`
}

func TestRealtimeDeliversChangesInOrder(t *testing.T) {
	frames := []string{
		`{"topic":"phoenix","event":"presence_state","payload":{}}`,
		change("INSERT", `{"id":4,"title":"a","urgency":1,"difficulty":1,"priority":1}`),
		change("UPDATE", `{"id":4,"title":"b","urgency":1,"difficulty":1,"priority":1}`),
		change("DELETE", `{"id":4}`),
	}
	joined := make(chan joinPayload, 1)
	srv := fakeRealtime(t, frames, joined)

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "session-token"})
	rt := NewRealtime(Config{URL: srv.URL, AnonKey: "anon-key"}, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := rt.Subscribe(ctx, "user-1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	join := <-joined
	if join.AccessToken != "session-token" {
		t.Errorf("join access token = %q", join.AccessToken)
	}
	if len(join.Config.PostgresChanges) != 1 || join.Config.PostgresChanges[0].Filter != "user_id=eq.user-1" {
		t.Errorf("join filter = %+v", join.Config.PostgresChanges)
	}

	want := []struct {
		typ   backend.PushEventType
		title string
	}{
		{backend.PushInsert, "a"},
		{backend.PushUpdate, "b"},
		{backend.PushDelete, ""},
	}
	for i, w := range want {
		select {
		case ev := <-events:
			if ev.Type != w.typ || ev.Task.ID != 4 || ev.Task.Title != w.title {
				t.Errorf("event %d = %+v, want %s %q", i, ev, w.typ, w.title)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()
	for range events {
	}
}

func TestRealtimeJoinRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var msg phoenixMessage
		_ = json.Unmarshal(data, &msg)
		reply := `{"topic":"` + msg.Topic + `","event":"phx_reply","ref":"` + msg.Ref + `","payload":{"status":"error","response":{"reason":"unauthorized"}}}`
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(reply))
		_, _, _ = conn.Read(r.Context())
	}))
	defer srv.Close()

	rt := NewRealtime(Config{URL: srv.URL, AnonKey: "anon-key"}, nil)
	_, err := rt.Subscribe(context.Background(), "user-1")
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("Subscribe() error = %v, want join rejection", err)
	}
}

func TestDecodeChangeIgnoresBadPayloads(t *testing.T) {
	tests := []string{
		`not json`,
		`{"data":{"type":"TRUNCATE","record":{"id":1}}}`,
		`{"data":{"type":"INSERT","record":{"title":"no id"}}}`,
	}
	for _, raw := range tests {
		if _, ok := decodeChange(json.RawMessage(raw)); ok {
			t.Errorf("decodeChange(%s) accepted", raw)
		}
	}
}
