package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"priorityforge/backend"
)

func TestSignInWithPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("request = %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"at","token_type":"bearer","expires_in":3600,"refresh_token":"rt","user":{"id":"user-1"}}`)
	}))
	defer srv.Close()
	cfg := Config{URL: srv.URL, AnonKey: "anon-key"}

	tok, userID, err := SignInWithPassword(context.Background(), cfg, "a@b.c", "secret")
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" || userID != "user-1" {
		t.Errorf("token = %+v, user = %q", tok, userID)
	}
	if time.Until(tok.Expiry) < 50*time.Minute {
		t.Errorf("Expiry = %v, want about an hour out", tok.Expiry)
	}

	_, _, err = SignInWithPassword(context.Background(), cfg, "a@b.c", "wrong")
	be, ok := err.(*backend.BackendError)
	if !ok || be.StatusCode != http.StatusBadRequest || be.Message != "Invalid login credentials" {
		t.Errorf("error = %v, want BackendError with the server's description", err)
	}
}

func TestTokenSourceRefreshesExpiredToken(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.URL.Query().Get("grant_type"))
		}
		refreshes.Add(1)
		_, _ = io.WriteString(w, `{"access_token":"fresh","expires_in":3600,"refresh_token":"rt2","user":{"id":"user-1"}}`)
	}))
	defer srv.Close()

	expired := &oauth2.Token{AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Minute)}
	ts := TokenSource(Config{URL: srv.URL, AnonKey: "anon-key"}, expired)

	for i := 0; i < 2; i++ {
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok.AccessToken != "fresh" {
			t.Errorf("AccessToken = %q, want fresh", tok.AccessToken)
		}
	}
	if n := refreshes.Load(); n != 1 {
		t.Errorf("refreshed %d times, want 1", n)
	}
}

func TestTokenSourceWithoutRefreshToken(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "only"}
	got, err := TokenSource(Config{}, tok).Token()
	if err != nil || got.AccessToken != "only" {
		t.Errorf("Token() = %v, %v", got, err)
	}
}
