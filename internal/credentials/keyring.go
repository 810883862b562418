package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const (
	// KeyringService is the service name of every priorityforge keyring entry.
	KeyringService = "priorityforge"
)

// ErrNoSession is returned when no session is stored for an account.
var ErrNoSession = errors.New("no stored session")

// Session is a signed-in user: the bearer token and the account it belongs to.
type Session struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// NewSession builds a Session from an oauth2 token.
func NewSession(userID string, tok *oauth2.Token) *Session {
	return &Session{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

// Token returns the session as an oauth2 token.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.Expiry,
	}
}

// Usable reports whether the session can still authenticate requests:
// its token has not expired, or it can be refreshed.
func (s *Session) Usable(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	if s.RefreshToken != "" || s.Expiry.IsZero() {
		return true
	}
	return now.Before(s.Expiry)
}

// Save stores the session for account (the remote project host).
func Save(account string, s *Session) error {
	if account == "" {
		return fmt.Errorf("account cannot be empty")
	}
	if s == nil || s.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := keyring.Set(KeyringService, account, string(data)); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}
	return nil
}

// Load returns the stored session for account, or ErrNoSession.
func Load(account string) (*Session, error) {
	if account == "" {
		return nil, fmt.Errorf("account cannot be empty")
	}

	data, err := keyring.Get(KeyringService, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session from keyring: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("stored session for %q is corrupt: %w", account, err)
	}
	return &s, nil
}

// Delete removes the stored session. Deleting a missing session is not an
// error.
func Delete(account string) error {
	if account == "" {
		return fmt.Errorf("account cannot be empty")
	}
	err := keyring.Delete(KeyringService, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete session from keyring: %w", err)
	}
	return nil
}

// IsAvailable checks if the keyring is accessible.
func IsAvailable() bool {
	_, err := keyring.Get(KeyringService+"-keyring-test", "test")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
