package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"priorityforge/backend"
	"priorityforge/internal/utils"
)

const (
	// RealtimePath is the websocket endpoint under the project URL.
	RealtimePath = "/realtime/v1/websocket"

	// DefaultHeartbeat keeps the Phoenix socket alive.
	DefaultHeartbeat = 25 * time.Second

	maxReconnectDelay = 30 * time.Second
)

// phoenixMessage is the Phoenix channel wire frame.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinPayload struct {
	Config struct {
		PostgresChanges []changeFilter `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type      string          `json:"type"`
		Record    json.RawMessage `json:"record"`
		OldRecord json.RawMessage `json:"old_record"`
	} `json:"data"`
}

// Realtime subscribes to row changes over the project's Phoenix socket.
// It implements backend.PushSubscriber.
type Realtime struct {
	config    Config
	ts        oauth2.TokenSource
	heartbeat time.Duration
}

// NewRealtime creates a subscriber. ts supplies the access token sent with
// the channel join so row-level security applies; nil joins with the anon
// key only.
func NewRealtime(cfg Config, ts oauth2.TokenSource) *Realtime {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	return &Realtime{config: cfg, ts: ts, heartbeat: DefaultHeartbeat}
}

// Topic returns the channel topic for userID.
func (r *Realtime) Topic(userID string) string {
	return "realtime:" + r.config.Table + "-changes-" + userID
}

func (r *Realtime) socketURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(r.config.URL, "/") + RealtimePath)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("apikey", r.config.AnonKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe joins the user's change channel and delivers events in arrival
// order. The first connection is made before returning; later drops are
// retried with backoff until ctx is done, at which point the channel is
// closed.
func (r *Realtime) Subscribe(ctx context.Context, userID string) (<-chan backend.PushEvent, error) {
	conn, err := r.connect(ctx, userID)
	if err != nil {
		return nil, err
	}

	events := make(chan backend.PushEvent, 16)
	go func() {
		defer close(events)
		delay := time.Second
		for {
			err := r.serve(ctx, conn, events)
			conn.CloseNow()
			if ctx.Err() != nil {
				return
			}
			utils.Warnf("Realtime connection lost: %v", err)

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				conn, err = r.connect(ctx, userID)
				if err == nil {
					delay = time.Second
					break
				}
				utils.Debugf("Realtime reconnect failed: %v", err)
				delay *= 2
				if delay > maxReconnectDelay {
					delay = maxReconnectDelay
				}
			}
			utils.Infof("Realtime connection restored")
		}
	}()
	return events, nil
}

// connect dials the socket and joins the channel, waiting for the join
// reply.
func (r *Realtime) connect(ctx context.Context, userID string) (*websocket.Conn, error) {
	endpoint, err := r.socketURL()
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	var join joinPayload
	join.Config.PostgresChanges = []changeFilter{{
		Event:  "*",
		Schema: "public",
		Table:  r.config.Table,
		Filter: "user_id=eq." + userID,
	}}
	if r.ts != nil {
		if tok, err := r.ts.Token(); err == nil {
			join.AccessToken = tok.AccessToken
		} else {
			utils.Warnf("Joining realtime without an access token: %v", err)
		}
	}

	ref := uuid.NewString()
	if err := writeMessage(dialCtx, conn, r.Topic(userID), "phx_join", join, ref, ref); err != nil {
		conn.CloseNow()
		return nil, err
	}

	for {
		msg, err := readMessage(dialCtx, conn)
		if err != nil {
			conn.CloseNow()
			return nil, fmt.Errorf("no join reply: %w", err)
		}
		if msg.Event != "phx_reply" || msg.Ref != ref {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			conn.CloseNow()
			return nil, fmt.Errorf("invalid join reply: %w", err)
		}
		if reply.Status != "ok" {
			conn.CloseNow()
			return nil, fmt.Errorf("realtime join rejected: %s", string(reply.Response))
		}
		utils.Debugf("Joined %s", r.Topic(userID))
		return conn, nil
	}
}

// serve reads frames until the connection fails or ctx is done, sending a
// heartbeat on the configured interval.
func (r *Realtime) serve(ctx context.Context, conn *websocket.Conn, events chan<- backend.PushEvent) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writeMessage(ctx, conn, "phoenix", "heartbeat", struct{}{}, uuid.NewString(), ""); err != nil {
					utils.Debugf("Heartbeat failed: %v", err)
					cancel()
					return
				}
			}
		}
	}()

	for {
		msg, err := readMessage(ctx, conn)
		if err != nil {
			return err
		}
		switch msg.Event {
		case "postgres_changes":
			ev, ok := decodeChange(msg.Payload)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "phx_error", "phx_close":
			return errors.New("channel " + msg.Event)
		}
	}
}

// decodeChange maps a postgres_changes payload to a PushEvent.
func decodeChange(raw json.RawMessage) (backend.PushEvent, bool) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		utils.Debugf("Ignoring malformed change payload: %v", err)
		return backend.PushEvent{}, false
	}

	var ev backend.PushEvent
	record := p.Data.Record
	switch strings.ToUpper(p.Data.Type) {
	case "INSERT":
		ev.Type = backend.PushInsert
	case "UPDATE":
		ev.Type = backend.PushUpdate
	case "DELETE":
		ev.Type = backend.PushDelete
		record = p.Data.OldRecord
	default:
		utils.Debugf("Ignoring change of type %q", p.Data.Type)
		return backend.PushEvent{}, false
	}

	var row remoteTask
	if err := json.Unmarshal(record, &row); err != nil || row.ID == 0 {
		utils.Debugf("Ignoring change without a task id")
		return backend.PushEvent{}, false
	}
	if ev.Type == backend.PushDelete {
		ev.Task = backend.Task{ID: row.ID}
	} else {
		ev.Task = toTask(row)
	}
	return ev, true
}

func writeMessage(ctx context.Context, conn *websocket.Conn, topic, event string, payload interface{}, ref, joinRef string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(phoenixMessage{
		Topic:   topic,
		Event:   event,
		Payload: body,
		Ref:     ref,
		JoinRef: joinRef,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func readMessage(ctx context.Context, conn *websocket.Conn) (phoenixMessage, error) {
	var msg phoenixMessage
	_, data, err := conn.Read(ctx)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("invalid frame: %w", err)
	}
	return msg, nil
}
