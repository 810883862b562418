package backend

import "context"

// Selector picks the authoritative backend for each operation: the remote
// backend while a session exists, the local store otherwise.
type Selector struct {
	remote  TaskBackend
	local   LocalStore
	session SessionProvider
}

// NewSelector creates a Selector. remote and session may be nil, in which
// case every operation goes to local.
func NewSelector(remote TaskBackend, local LocalStore, session SessionProvider) *Selector {
	return &Selector{
		remote:  remote,
		local:   local,
		session: session,
	}
}

// Select returns the backend to use for an operation starting now.
func (s *Selector) Select(ctx context.Context) TaskBackend {
	if s.UseRemote(ctx) {
		return s.remote
	}
	return s.local
}

// UseRemote reports whether the remote backend is configured and a session
// is active.
func (s *Selector) UseRemote(ctx context.Context) bool {
	return s.remote != nil && s.session != nil && s.session.HasActiveSession(ctx)
}

// UserID returns the current user id, if any.
func (s *Selector) UserID(ctx context.Context) (string, bool) {
	if s.session == nil {
		return "", false
	}
	return s.session.CurrentUserID(ctx)
}

// Remote returns the remote backend, or nil when none is configured.
func (s *Selector) Remote() TaskBackend {
	return s.remote
}

// Local returns the local fallback store.
func (s *Selector) Local() LocalStore {
	return s.local
}
