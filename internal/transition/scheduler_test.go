package transition

import (
	"context"
	"errors"
	"testing"
	"time"

	"priorityforge/backend"
	"priorityforge/internal/clock"
	"priorityforge/internal/state"
)

// mockCommitter commits through a MockBackend the way the coordinator does.
type mockCommitter struct {
	mb *backend.MockBackend
}

func (m mockCommitter) SetCompleted(ctx context.Context, id int64, completed bool) (backend.Task, error) {
	return m.mb.UpdateTask(ctx, id, backend.TaskChanges{Completed: &completed})
}

type fixture struct {
	store *state.Store
	mb    *backend.MockBackend
	clock *clock.Fake
	sched *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tasks := []backend.Task{
		{ID: 1, Title: "Write report", Urgency: 5, Difficulty: 4},
		{ID: 2, Title: "Review", Urgency: 2, Difficulty: 2, Completed: true},
	}
	store := state.NewStore()
	store.ReplaceAll(tasks, backend.SourceRemote)
	mb := backend.NewMockBackend(backend.SourceRemote, tasks...)
	c := clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local))
	sched := NewScheduler(store, mockCommitter{mb: mb}, Options{Clock: c})
	return &fixture{store: store, mb: mb, clock: c, sched: sched}
}

func (f *fixture) updates() int {
	return len(f.mb.Calls("UpdateTask"))
}

func TestToggleTwiceWithinWindowIsUndo(t *testing.T) {
	f := newFixture(t)

	res, err := f.sched.Toggle(1)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !res.Pending || !res.Intended {
		t.Fatalf("first Toggle() = %+v, want pending with intended=true", res)
	}

	f.clock.Advance(time.Second)
	res, err = f.sched.Toggle(1)
	if err != nil {
		t.Fatalf("second Toggle() error = %v", err)
	}
	if res.Pending {
		t.Fatal("second Toggle() started a new cycle, want cancel")
	}

	f.clock.Advance(10 * time.Second)

	if n := f.updates(); n != 0 {
		t.Errorf("backend received %d updates, want 0", n)
	}
	if task, _ := f.store.Task(1); task.Completed {
		t.Error("task completed after undo")
	}
	if len(f.sched.PendingIDs()) != 0 {
		t.Errorf("PendingIDs() = %v, want none", f.sched.PendingIDs())
	}
}

func TestToggleCommitsAfterDelay(t *testing.T) {
	f := newFixture(t)

	if _, err := f.sched.Toggle(1); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if intended, ok := f.sched.Pending(1); !ok || !intended {
		t.Fatalf("Pending(1) = %v, %v; want true, true", intended, ok)
	}

	f.clock.Advance(DefaultDelay - time.Millisecond)
	if n := f.updates(); n != 0 {
		t.Fatalf("commit happened before the delay elapsed (%d updates)", n)
	}
	if task, _ := f.store.Task(1); task.Completed {
		t.Fatal("persisted completed changed during the delay")
	}

	f.clock.Advance(time.Millisecond)
	if n := f.updates(); n != 1 {
		t.Fatalf("backend received %d updates, want 1", n)
	}
	call := f.mb.Calls("UpdateTask")[0]
	if call.ID != 1 || call.Changes.Completed == nil || !*call.Changes.Completed {
		t.Errorf("update call = %+v, want completed=true for task 1", call)
	}
	if task, _ := f.store.Task(1); !task.Completed {
		t.Error("task not completed after commit")
	}
	if _, ok := f.sched.Pending(1); ok {
		t.Error("pending entry remains after commit")
	}

	f.clock.Advance(time.Minute)
	if n := f.updates(); n != 1 {
		t.Errorf("extra commits after the first: %d", n)
	}
}

func TestToggleUncompletesCompletedTask(t *testing.T) {
	f := newFixture(t)
	res, _ := f.sched.Toggle(2)
	if res.Intended {
		t.Fatal("intended = true for a completed task")
	}
	f.clock.Advance(DefaultDelay)
	if task, _ := f.store.Task(2); task.Completed {
		t.Error("task still completed after commit")
	}
}

func TestDeleteDuringPendingPreventsCommit(t *testing.T) {
	f := newFixture(t)
	f.sched.Toggle(1)

	f.store.Remove(1)
	f.clock.Advance(time.Minute)

	if n := f.updates(); n != 0 {
		t.Errorf("backend received %d updates after delete, want 0", n)
	}
	if f.clock.Pending() != 0 {
		t.Errorf("%d timers still armed", f.clock.Pending())
	}
}

func TestCancelDuringCommitDiscardsResult(t *testing.T) {
	f := newFixture(t)
	f.mb.OnUpdate = func(id int64, _ backend.TaskChanges) {
		// The user taps again while the request is in flight.
		if _, err := f.sched.Toggle(id); err != nil {
			t.Errorf("Toggle() during commit error = %v", err)
		}
	}

	f.sched.Toggle(1)
	f.clock.Advance(DefaultDelay)

	if n := f.updates(); n != 1 {
		t.Fatalf("updates = %d, want 1", n)
	}
	if task, _ := f.store.Task(1); task.Completed {
		t.Error("stale commit result applied after cancel")
	}
	if _, ok := f.sched.Pending(1); ok {
		t.Error("pending entry exists after cancel")
	}
}

func TestRetoggleDuringCommitKeepsNewTransition(t *testing.T) {
	f := newFixture(t)
	retoggled := false
	f.mb.OnUpdate = func(id int64, _ backend.TaskChanges) {
		if retoggled {
			return
		}
		retoggled = true
		f.sched.Toggle(id) // cancel
		f.sched.Toggle(id) // start again with the same intent
	}

	f.sched.Toggle(1)
	f.clock.Advance(DefaultDelay)

	if task, _ := f.store.Task(1); task.Completed {
		t.Error("first commit applied although a new cycle replaced it")
	}
	if intended, ok := f.sched.Pending(1); !ok || !intended {
		t.Fatalf("new pending transition lost: %v, %v", intended, ok)
	}

	f.clock.Advance(DefaultDelay)
	if task, _ := f.store.Task(1); !task.Completed {
		t.Error("second cycle did not commit")
	}
	if n := f.updates(); n != 2 {
		t.Errorf("updates = %d, want 2", n)
	}
}

func TestCommitFailureClearsPendingAndPublishesError(t *testing.T) {
	f := newFixture(t)
	f.mb.UpdateErr = backend.NewBackendError("UpdateTask", 503, "service unavailable")

	f.sched.Toggle(1)
	f.clock.Advance(DefaultDelay)

	if _, ok := f.sched.Pending(1); ok {
		t.Error("pending entry survived a failed commit")
	}
	if task, _ := f.store.Task(1); task.Completed {
		t.Error("failed commit mutated the task")
	}
	if msg := f.store.LastError(); msg == "" {
		t.Error("no error published for failed commit")
	}
}

func TestToggleUnknownTask(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sched.Toggle(99); err == nil {
		t.Error("Toggle() on unknown id should fail")
	}
	if f.clock.Pending() != 0 {
		t.Error("timer armed for unknown id")
	}
}

func TestCustomDelay(t *testing.T) {
	f := newFixture(t)
	sched := NewScheduler(f.store, mockCommitter{mb: f.mb}, Options{Clock: f.clock, Delay: 200 * time.Millisecond})
	if sched.Delay() != 200*time.Millisecond {
		t.Fatalf("Delay() = %v", sched.Delay())
	}
	sched.Toggle(1)
	f.clock.Advance(200 * time.Millisecond)
	if n := f.updates(); n != 1 {
		t.Errorf("updates = %d, want 1", n)
	}
}

func TestShutdownCancelsTimers(t *testing.T) {
	f := newFixture(t)
	f.sched.Toggle(1)
	f.sched.Toggle(2)

	f.sched.Shutdown(time.Second)
	f.clock.Advance(time.Minute)

	if n := f.updates(); n != 0 {
		t.Errorf("updates after shutdown = %d, want 0", n)
	}
	if len(f.sched.PendingIDs()) != 0 {
		t.Error("pending entries remain after shutdown")
	}
	if _, err := f.sched.Toggle(1); !errors.Is(err, ErrShutdown) {
		t.Errorf("Toggle() after shutdown error = %v, want ErrShutdown", err)
	}
	f.sched.Shutdown(time.Second) // idempotent
}

type blockingCommitter struct {
	entered chan struct{}
}

func (b blockingCommitter) SetCompleted(ctx context.Context, id int64, completed bool) (backend.Task, error) {
	close(b.entered)
	<-ctx.Done()
	return backend.Task{}, ctx.Err()
}

func TestShutdownDiscardsInFlightCommit(t *testing.T) {
	f := newFixture(t)
	bc := blockingCommitter{entered: make(chan struct{})}
	sched := NewScheduler(f.store, bc, Options{Clock: f.clock})

	sched.Toggle(1)
	advanced := make(chan struct{})
	go func() {
		f.clock.Advance(DefaultDelay)
		close(advanced)
	}()
	<-bc.entered

	sched.Shutdown(20 * time.Millisecond)

	select {
	case <-advanced:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight commit was not cancelled after shutdown")
	}
	if task, _ := f.store.Task(1); task.Completed {
		t.Error("in-flight commit mutated the task")
	}
	if msg := f.store.LastError(); msg != "" {
		t.Errorf("LastError() = %q, want none for a discarded commit", msg)
	}
}
