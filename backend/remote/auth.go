package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"priorityforge/backend"
)

// AuthPath is the auth service mount point under the project URL.
const AuthPath = "/auth/v1"

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

type authError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

// SignInWithPassword exchanges email and password for a session token and
// the account's user id.
func SignInWithPassword(ctx context.Context, cfg Config, email, password string) (*oauth2.Token, string, error) {
	return tokenRequest(ctx, cfg, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// refreshSource renews an access token with its refresh token.
type refreshSource struct {
	cfg          Config
	refreshToken string
}

func (s *refreshSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	tok, _, err := tokenRequest(ctx, s.cfg, "refresh_token", map[string]string{
		"refresh_token": s.refreshToken,
	})
	if err != nil {
		return nil, &oauth2.RetrieveError{ErrorCode: "refresh_failed", ErrorDescription: err.Error()}
	}
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	return tok, nil
}

// TokenSource returns a source that serves tok until it expires and then
// refreshes it. Without a refresh token the expired token keeps being
// served and the server rejects it.
func TokenSource(cfg Config, tok *oauth2.Token) oauth2.TokenSource {
	if tok == nil || tok.RefreshToken == "" {
		return oauth2.StaticTokenSource(tok)
	}
	return oauth2.ReuseTokenSource(tok, &refreshSource{cfg: cfg, refreshToken: tok.RefreshToken})
}

func tokenRequest(ctx context.Context, cfg Config, grant string, body map[string]string) (*oauth2.Token, string, error) {
	op := "SignIn"
	if grant == "refresh_token" {
		op = "RefreshSession"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", backend.NewBackendError(op, 0, "failed to marshal request body").WithError(err)
	}
	endpoint := strings.TrimRight(cfg.URL, "/") + AuthPath + "/token?grant_type=" + grant
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", backend.NewBackendError(op, 0, "failed to create request").WithError(err)
	}
	req.Header.Set("apikey", cfg.AnonKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: DefaultTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", backend.NewBackendError(op, 0, "").WithError(transportError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", backend.NewBackendError(op, resp.StatusCode, "failed to read response").WithError(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		var ae authError
		if json.Unmarshal(data, &ae) == nil {
			switch {
			case ae.ErrorDescription != "":
				msg = ae.ErrorDescription
			case ae.Msg != "":
				msg = ae.Msg
			case ae.Error != "":
				msg = ae.Error
			}
		}
		return nil, "", backend.NewBackendError(op, resp.StatusCode, msg).WithBody(string(data))
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, "", backend.NewBackendError(op, 0, fmt.Sprintf("failed to decode response: %v", err))
	}
	if tr.AccessToken == "" {
		return nil, "", backend.NewBackendError(op, resp.StatusCode, "response carried no access token")
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, tr.User.ID, nil
}
