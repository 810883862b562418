package state

import (
	"sync"

	"priorityforge/internal/clock"
)

// Token identifies one pending transition. Tokens are compared by pointer
// identity and own the timer that will commit the transition.
type Token struct {
	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

// NewToken returns a fresh token with no timer.
func NewToken() *Token {
	return &Token{}
}

// Arm attaches the commit timer. If the token was already stopped the
// timer is stopped immediately.
func (t *Token) Arm(timer clock.Timer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = timer
	if t.stopped && timer != nil {
		timer.Stop()
	}
}

// Stop cancels the timer. It reports whether this call stopped it.
func (t *Token) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

// isStopped reports whether Stop has been called.
func (t *Token) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// PendingTransition is an uncommitted completion change for one task.
type PendingTransition struct {
	Token    *Token
	Intended bool
}
