// Package transition implements the cancelable delayed completion toggle.
//
// A toggle on an idle task records a pending transition to the opposite
// completion state and arms a timer. A second toggle before the timer fires
// cancels it. When the timer fires the transition is validated, committed
// through the Committer, and validated again before the result is applied.
package transition

import (
	"context"
	"errors"
	"sync"
	"time"

	"priorityforge/backend"
	"priorityforge/internal/clock"
	"priorityforge/internal/state"
	"priorityforge/internal/utils"
)

// DefaultDelay is the undo window of a completion toggle.
const DefaultDelay = 1500 * time.Millisecond

// DefaultCommitTimeout bounds a single commit request.
const DefaultCommitTimeout = 15 * time.Second

// ErrShutdown is returned by Toggle after Shutdown.
var ErrShutdown = errors.New("transition scheduler is shut down")

// Committer writes a completion change to the authoritative backend and
// returns the stored task. It must not touch the state store.
type Committer interface {
	SetCompleted(ctx context.Context, id int64, completed bool) (backend.Task, error)
}

// Options configures a Scheduler. Zero values select the defaults.
type Options struct {
	Delay         time.Duration
	CommitTimeout time.Duration
	Clock         clock.Clock
}

// Result describes the effect of a Toggle.
type Result struct {
	// Pending is true when a new transition is now waiting and false when
	// the call cancelled one.
	Pending  bool
	Intended bool
}

// Scheduler owns the commit timers. Pending entries live in the store.
type Scheduler struct {
	store     *state.Store
	committer Committer
	clock     clock.Clock
	delay     time.Duration
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewScheduler creates a scheduler over store.
func NewScheduler(store *state.Store, committer Committer, opts Options) *Scheduler {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = DefaultCommitTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     store,
		committer: committer,
		clock:     opts.Clock,
		delay:     opts.Delay,
		timeout:   opts.CommitTimeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Delay returns the configured undo window.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Toggle starts a delayed completion toggle for id, or cancels the one
// already pending.
func (s *Scheduler) Toggle(id int64) (Result, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Result{}, ErrShutdown
	}

	token := state.NewToken()
	res, err := s.store.StartOrCancelTransition(id, token)
	if err != nil {
		return Result{}, err
	}
	if !res.Started {
		utils.Debugf("Toggle: cancelled pending transition for task %d", id)
		return Result{Pending: false, Intended: res.Intended}, nil
	}

	intended := res.Intended
	token.Arm(s.clock.AfterFunc(s.delay, func() {
		s.fire(id, token, intended)
	}))
	utils.Debugf("Toggle: task %d pending completed=%v in %v", id, intended, s.delay)
	return Result{Pending: true, Intended: intended}, nil
}

// Cancel stops id's pending transition. It reports whether one existed.
func (s *Scheduler) Cancel(id int64) bool {
	return s.store.CancelTransition(id)
}

// Pending returns the intended state of id's pending transition.
func (s *Scheduler) Pending(id int64) (bool, bool) {
	return s.store.Pending(id)
}

// PendingIDs returns the ids currently mid-toggle.
func (s *Scheduler) PendingIDs() []int64 {
	return s.store.PendingIDs()
}

// fire runs when a transition's delay has elapsed.
func (s *Scheduler) fire(id int64, token *state.Token, intended bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if !s.store.TransitionValid(id, token, intended) {
		utils.Debugf("Transition for task %d is stale, abandoning", id)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	committed, err := s.committer.SetCompleted(ctx, id, intended)
	if err != nil {
		if s.store.AbortTransition(id, token) {
			utils.Warnf("Completion commit for task %d failed: %v", id, err)
			s.store.SetError(utils.UserMessage(err))
		} else {
			utils.Debugf("Completion commit for task %d failed after it was cancelled: %v", id, err)
		}
		return
	}

	if !s.store.CompleteTransition(id, token, intended, committed) {
		utils.Debugf("Transition for task %d was invalidated during commit, discarding result", id)
		return
	}
	utils.Debugf("Task %d committed completed=%v", id, intended)
}

// Shutdown cancels every outstanding timer and waits up to timeout for
// in-flight commits. Their results are discarded. After the wait, or the
// timeout, in-flight requests are cancelled.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if n := s.store.CancelAllTransitions(); n > 0 {
		utils.Debugf("Shutdown: cancelled %d pending transitions", n)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		utils.Warnf("Pending completion commits did not finish within %v", timeout)
	}
	s.cancel()
}
