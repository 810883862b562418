package credentials

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"golang.org/x/oauth2"

	"priorityforge/backend/remote"
	"priorityforge/internal/clock"
	"priorityforge/internal/utils"
)

// Source indicates where the session was found
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceNone    Source = "none"
)

// Resolver finds the current session, keyring first and environment second,
// and serves its bearer token. It implements backend.SessionProvider.
type Resolver struct {
	account string
	remote  remote.Config
	clock   clock.Clock

	mu       sync.Mutex
	resolved bool
	session  *Session
	source   Source
	ts       oauth2.TokenSource
	tsFor    *Session
}

// AccountFor returns the keyring account for a project URL: its host.
func AccountFor(projectURL string) string {
	u, err := url.Parse(projectURL)
	if err != nil || u.Host == "" {
		return projectURL
	}
	return u.Host
}

// NewResolver creates a resolver for the project at cfg.URL.
func NewResolver(cfg remote.Config, c clock.Clock) *Resolver {
	if c == nil {
		c = clock.Real()
	}
	return &Resolver{
		account: AccountFor(cfg.URL),
		remote:  cfg,
		clock:   c,
		source:  SourceNone,
	}
}

// Account returns the keyring account this resolver reads.
func (r *Resolver) Account() string {
	return r.account
}

func (r *Resolver) resolveLocked() {
	if r.resolved {
		return
	}
	r.resolved = true
	r.session, r.source = nil, SourceNone

	if IsAvailable() {
		s, err := Load(r.account)
		switch {
		case err == nil:
			r.session, r.source = s, SourceKeyring
			return
		case !errors.Is(err, ErrNoSession):
			utils.Warnf("Keyring lookup failed: %v", err)
		}
	}
	if s := sessionFromEnv(); s != nil {
		r.session, r.source = s, SourceEnv
	}
}

// Resolve returns the current session and where it came from. The session
// is nil when none was found.
func (r *Resolver) Resolve() (*Session, Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveLocked()
	return r.session, r.source
}

// Reload forgets the cached lookup so the next call reads the keyring again.
func (r *Resolver) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = false
	r.ts, r.tsFor = nil, nil
}

func (r *Resolver) HasActiveSession(ctx context.Context) bool {
	s, _ := r.Resolve()
	return s.Usable(r.clock.Now())
}

func (r *Resolver) CurrentUserID(ctx context.Context) (string, bool) {
	s, _ := r.Resolve()
	if !s.Usable(r.clock.Now()) || s.UserID == "" {
		return "", false
	}
	return s.UserID, true
}

// Login stores s in the keyring and makes it the current session.
func (r *Resolver) Login(s *Session) error {
	if err := Save(r.account, s); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session, r.source, r.resolved = s, SourceKeyring, true
	r.ts, r.tsFor = nil, nil
	return nil
}

// Logout deletes the stored session. A session supplied by the environment
// stays active until the variables are unset.
func (r *Resolver) Logout() error {
	if err := Delete(r.account); err != nil {
		return err
	}
	r.Reload()
	return nil
}

// TokenSource returns a source that always serves the current session's
// token, refreshing it when it expires. Refreshed keyring sessions are
// written back.
func (r *Resolver) TokenSource() oauth2.TokenSource {
	return sessionTokenSource{r: r}
}

type sessionTokenSource struct {
	r *Resolver
}

func (s sessionTokenSource) Token() (*oauth2.Token, error) {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveLocked()

	sess := r.session
	if sess == nil {
		return nil, utils.ErrNotAuthenticated()
	}
	if r.ts == nil || r.tsFor != sess {
		r.ts = remote.TokenSource(r.remote, sess.Token())
		r.tsFor = sess
	}

	tok, err := r.ts.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != sess.AccessToken {
		refreshed := NewSession(sess.UserID, tok)
		if r.source == SourceKeyring {
			if err := Save(r.account, refreshed); err != nil {
				utils.Warnf("Could not persist refreshed session: %v", err)
			}
		}
		r.session, r.tsFor = refreshed, refreshed
		utils.Debugf("Session refreshed for %s", r.account)
	}
	return tok, nil
}
