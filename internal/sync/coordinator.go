// Package sync keeps the in-memory task set consistent with the
// authoritative backend: initial load, refresh, write-through CRUD, push
// event merging and daily reprioritization.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"priorityforge/backend"
	"priorityforge/internal/clock"
	"priorityforge/internal/priority"
	"priorityforge/internal/state"
	"priorityforge/internal/utils"
)

// DefaultSuppressWindow is how long refreshes are skipped after a local
// create so a stale read cannot clobber it.
const DefaultSuppressWindow = 500 * time.Millisecond

// DefaultRequestTimeout bounds a single backend request.
const DefaultRequestTimeout = 15 * time.Second

// Options configures a Coordinator. Zero values select the defaults.
type Options struct {
	SuppressWindow time.Duration
	RequestTimeout time.Duration
	Clock          clock.Clock
	// Subscriber delivers remote push events. Nil disables Start.
	Subscriber backend.PushSubscriber
}

// Coordinator orchestrates loads and writes between the store and the
// backend chosen by the selector.
type Coordinator struct {
	store    *state.Store
	selector *backend.Selector
	clock    clock.Clock
	ids      *IDGenerator

	suppressWindow time.Duration
	timeout        time.Duration
	subscriber     backend.PushSubscriber

	// applyMu serializes "check the suppress window, then replace the set"
	// against "persist locally, open the window, then replace the set".
	applyMu       sync.Mutex
	suppressUntil time.Time
	localWrites   uint64

	// Goroutine management
	wg         sync.WaitGroup
	refreshing atomic.Bool
	shutdown   atomic.Bool
	pushCancel context.CancelFunc
	pushMu     sync.Mutex
}

// NewCoordinator creates a coordinator writing into store.
func NewCoordinator(store *state.Store, selector *backend.Selector, opts Options) *Coordinator {
	if opts.SuppressWindow <= 0 {
		opts.SuppressWindow = DefaultSuppressWindow
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Coordinator{
		store:          store,
		selector:       selector,
		clock:          opts.Clock,
		ids:            NewIDGenerator(opts.Clock),
		suppressWindow: opts.SuppressWindow,
		timeout:        opts.RequestTimeout,
		subscriber:     opts.Subscriber,
	}
}

// Store returns the store the coordinator writes into.
func (c *Coordinator) Store() *state.Store {
	return c.store
}

func (c *Coordinator) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// fail publishes err as the latest error message and returns it.
func (c *Coordinator) fail(op string, err error) error {
	utils.Warnf("%s failed: %v", op, err)
	c.store.SetError(utils.UserMessage(err))
	return err
}

// InitialLoad populates the store from the authoritative backend. A
// non-nil error means the remote fetch failed and the store now holds the
// local set instead; the engine remains usable.
func (c *Coordinator) InitialLoad(ctx context.Context) error {
	_, err := c.load(ctx, false)
	return err
}

// Refresh re-fetches the task set. It returns false without fetching while
// the suppress window is open, and false when a local write landed while
// the fetch was in flight.
func (c *Coordinator) Refresh(ctx context.Context) (bool, error) {
	return c.load(ctx, true)
}

// TriggerRefresh runs Refresh in the background unless one is already
// running. It returns immediately.
func (c *Coordinator) TriggerRefresh(ctx context.Context) {
	if c.shutdown.Load() {
		return
	}
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.refreshing.Store(false)
		defer func() {
			if r := recover(); r != nil {
				utils.Errorf("Panic in background refresh: %v", r)
			}
		}()
		if _, err := c.Refresh(ctx); err != nil {
			utils.Debugf("Background refresh fell back to local: %v", err)
		}
	}()
}

func (c *Coordinator) suppressedLocked() bool {
	return c.clock.Now().Before(c.suppressUntil)
}

// suppressed reports whether the post-create suppress window is open.
func (c *Coordinator) suppressed() bool {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	return c.suppressedLocked()
}

// markLocalWrite records a local write and opens the suppress window.
// Callers hold applyMu.
func (c *Coordinator) markLocalWriteLocked() {
	c.localWrites++
	c.suppressUntil = c.clock.Now().Add(c.suppressWindow)
}

func (c *Coordinator) load(ctx context.Context, guarded bool) (bool, error) {
	c.applyMu.Lock()
	if guarded && c.suppressedLocked() {
		c.applyMu.Unlock()
		utils.Debugf("Refresh skipped: local write within the last %v", c.suppressWindow)
		return false, nil
	}
	seq := c.localWrites
	c.applyMu.Unlock()

	c.store.SetLoading(true)
	defer c.store.SetLoading(false)
	c.store.ClearError()

	apply := func(tasks []backend.Task, src backend.Source) bool {
		c.applyMu.Lock()
		defer c.applyMu.Unlock()
		if guarded && c.localWrites != seq {
			utils.Debugf("Refresh result discarded: local write while fetching")
			return false
		}
		c.store.ReplaceAll(tasks, src)
		return true
	}

	local := c.selector.Local()
	if !c.selector.UseRemote(ctx) {
		tasks := local.Load(ctx)
		utils.Debugf("Loaded %d tasks from local storage", len(tasks))
		return apply(tasks, backend.SourceLocal), nil
	}

	userID, _ := c.selector.UserID(ctx)
	tasks, err := c.fetchRemote(ctx, backend.FetchOptions{UserID: userID})
	if err != nil && userID != "" && backend.IsAccessDenied(err) {
		utils.Warnf("Filtered fetch denied (%v), retrying without user filter", err)
		tasks, err = c.fetchRemote(ctx, backend.FetchOptions{})
		if err != nil {
			utils.Warnf("Unfiltered fetch failed, using local storage: %v", err)
			return apply(local.Load(ctx), backend.SourceLocal), nil
		}
	}
	if err != nil {
		utils.Errorf("Remote fetch failed, using local storage: %v", err)
		applied := apply(local.Load(ctx), backend.SourceLocal)
		c.store.SetError(utils.UserMessage(err))
		return applied, err
	}

	if len(tasks) == 0 {
		// An empty remote set next to a non-empty local one most likely means
		// the tasks were created offline and never uploaded.
		if localTasks := local.Load(ctx); len(localTasks) > 0 {
			utils.Infof("Remote returned no tasks, showing %d local tasks", len(localTasks))
			return apply(localTasks, backend.SourceLocal), nil
		}
	}

	utils.Debugf("Loaded %d tasks from remote", len(tasks))
	return apply(tasks, backend.SourceRemote), nil
}

func (c *Coordinator) fetchRemote(ctx context.Context, opts backend.FetchOptions) ([]backend.Task, error) {
	rctx, cancel := c.requestContext(ctx)
	defer cancel()
	return c.selector.Remote().FetchTasks(rctx, opts)
}

func (c *Coordinator) resolveDue(due *time.Time, daysUntil *int, now time.Time) *time.Time {
	if daysUntil != nil {
		d := utils.DateFromDays(now, *daysUntil)
		return &d
	}
	return utils.NormalizeDate(due)
}

// Create validates draft, computes its priority and stores it in the
// authoritative backend.
func (c *Coordinator) Create(ctx context.Context, draft backend.TaskDraft) (backend.Task, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	if err := utils.ValidateStruct(draft); err != nil {
		return backend.Task{}, c.fail("create", err)
	}

	now := c.clock.Now()
	task := backend.Task{
		Title:       draft.Title,
		Description: draft.Description,
		Urgency:     draft.Urgency,
		Difficulty:  draft.Difficulty,
		DueDate:     c.resolveDue(draft.DueDate, draft.DaysUntilDue, now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	task.Priority = priority.Of(task, now)

	if c.selector.UseRemote(ctx) {
		userID, ok := c.selector.UserID(ctx)
		if !ok || userID == "" {
			return backend.Task{}, c.fail("create", utils.ErrNotAuthenticated())
		}
		task.OwnerID = userID

		rctx, cancel := c.requestContext(ctx)
		defer cancel()
		created, err := c.selector.Remote().CreateTask(rctx, task)
		if err != nil {
			return backend.Task{}, c.fail("create", err)
		}
		if !c.store.InsertIfAbsent(created) {
			utils.Debugf("Created task %d already present (push event won)", created.ID)
		}
		return created, nil
	}

	// A single-row insert never touches the rest of the stored set, even
	// when the last Load could not read it.
	local := c.selector.Local()
	task.ID = c.ids.Next(c.store.Has)
	rctx, cancel := c.requestContext(ctx)
	defer cancel()
	created, err := local.CreateTask(rctx, task)
	if err != nil {
		return backend.Task{}, c.fail("create", err)
	}

	c.mergeWrite(local, func() {
		if c.store.Source() == backend.SourceLocal {
			c.store.InsertIfAbsent(created)
			return
		}
		// Signed out mid-session: swap the remote set for the local one.
		c.store.ReplaceAll(local.Load(ctx), backend.SourceLocal)
	})

	utils.Debugf("Created local task %d", created.ID)
	return created, nil
}

// Update validates patch and writes it through. Priority is recomputed when
// urgency, difficulty or the due date change.
func (c *Coordinator) Update(ctx context.Context, id int64, patch backend.TaskPatch) (backend.Task, error) {
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		if trimmed == "" {
			return backend.Task{}, c.fail("update", utils.ErrEmptyTitle())
		}
		patch.Title = &trimmed
	}
	if err := utils.ValidateStruct(patch); err != nil {
		return backend.Task{}, c.fail("update", err)
	}

	existing, ok := c.store.Task(id)
	if !ok {
		return backend.Task{}, c.fail("update", utils.ErrTaskNotFound(id))
	}
	if patch.IsEmpty() {
		return existing, nil
	}

	now := c.clock.Now()
	changes := backend.TaskChanges{
		Title:       patch.Title,
		Description: patch.Description,
		Urgency:     patch.Urgency,
		Difficulty:  patch.Difficulty,
		Completed:   patch.Completed,
		UpdatedAt:   now,
	}
	switch {
	case patch.ClearDueDate:
		changes.ClearDueDate = true
	case patch.DaysUntilDue != nil || patch.DueDate != nil:
		changes.DueDate = c.resolveDue(patch.DueDate, patch.DaysUntilDue, now)
	}
	if patch.TouchesPriority() {
		p := priority.Of(changes.Apply(existing), now)
		changes.Priority = &p
	}

	be := c.selector.Select(ctx)
	rctx, cancel := c.requestContext(ctx)
	defer cancel()
	updated, err := be.UpdateTask(rctx, id, changes)
	if err != nil {
		return backend.Task{}, c.fail("update", err)
	}
	c.mergeWrite(be, func() { c.store.ReplaceIfPresent(updated) })
	return updated, nil
}

// Delete cancels any pending transition on id and deletes the task. A task
// already missing from the backend is removed from the store as well.
func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	if !c.store.Has(id) {
		return c.fail("delete", utils.ErrTaskNotFound(id))
	}
	if c.store.CancelTransition(id) {
		utils.Debugf("Cancelled pending transition for deleted task %d", id)
	}

	be := c.selector.Select(ctx)
	rctx, cancel := c.requestContext(ctx)
	defer cancel()
	if err := be.DeleteTask(rctx, id); err != nil {
		if !backend.IsNotFound(err) {
			return c.fail("delete", err)
		}
		utils.Debugf("Task %d already gone from %s backend", id, be.Source())
	}
	c.mergeWrite(be, func() { c.store.Remove(id) })
	return nil
}

// mergeWrite applies a confirmed write to the store. Local writes also open
// the suppress window.
func (c *Coordinator) mergeWrite(be backend.TaskBackend, apply func()) {
	if be.Source() != backend.SourceLocal {
		apply()
		return
	}
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	c.markLocalWriteLocked()
	apply()
}

// SetCompleted writes a completion change through the authoritative
// backend. It does not touch the store; the transition scheduler applies
// the result after re-validating.
func (c *Coordinator) SetCompleted(ctx context.Context, id int64, completed bool) (backend.Task, error) {
	be := c.selector.Select(ctx)
	return be.UpdateTask(ctx, id, backend.TaskChanges{
		Completed: &completed,
		UpdatedAt: c.clock.Now(),
	})
}

// ApplyPushEvent merges one remote change into the store. It never
// re-fetches and reports whether the store changed.
func (c *Coordinator) ApplyPushEvent(ev backend.PushEvent) bool {
	switch ev.Type {
	case backend.PushInsert:
		return c.store.InsertIfAbsent(ev.Task)
	case backend.PushUpdate:
		return c.store.ReplaceIfPresent(ev.Task)
	case backend.PushDelete:
		return c.store.Remove(ev.Task.ID)
	default:
		utils.Debugf("Ignoring push event of type %q", ev.Type)
		return false
	}
}

// Start subscribes to remote push events for the current user and applies
// them in arrival order on one goroutine. It is a no-op without a
// subscriber or a session.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.subscriber == nil || !c.selector.UseRemote(ctx) {
		return nil
	}
	userID, ok := c.selector.UserID(ctx)
	if !ok || userID == "" {
		return nil
	}
	if c.shutdown.Load() {
		return errors.New("coordinator is shut down")
	}

	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if c.pushCancel != nil {
		return nil
	}

	pctx, cancel := context.WithCancel(ctx)
	events, err := c.subscriber.Subscribe(pctx, userID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to task changes: %w", err)
	}
	c.pushCancel = cancel

	c.wg.Add(1)
	go c.consume(events)
	return nil
}

func (c *Coordinator) consume(events <-chan backend.PushEvent) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("Panic in push handler: %v", r)
		}
	}()
	for ev := range events {
		if c.ApplyPushEvent(ev) {
			utils.Debugf("Applied push %s for task %d", ev.Type, ev.Task.ID)
		}
	}
}

// Reprioritize recomputes every task's priority for today and writes
// through the ones that changed. It returns how many were updated; the
// first failure is published and returned after the remaining tasks are
// attempted.
func (c *Coordinator) Reprioritize(ctx context.Context) (int, error) {
	now := c.clock.Now()
	be := c.selector.Select(ctx)

	var (
		updated  int
		firstErr error
	)
	for _, t := range c.store.Tasks() {
		p := priority.Of(t, now)
		if math.Abs(p-t.Priority) < 1e-9 {
			continue
		}
		rctx, cancel := c.requestContext(ctx)
		result, err := be.UpdateTask(rctx, t.ID, backend.TaskChanges{Priority: &p, UpdatedAt: now})
		cancel()
		if err != nil {
			utils.Warnf("Reprioritizing task %d failed: %v", t.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.mergeWrite(be, func() { c.store.ReplaceIfPresent(result) })
		updated++
	}

	if firstErr != nil {
		c.store.SetError(utils.UserMessage(firstErr))
	}
	if updated > 0 {
		utils.Infof("Reprioritized %d tasks", updated)
	}
	return updated, firstErr
}

// Reorder moves ids to the front of the in-memory order. Nothing is
// persisted.
func (c *Coordinator) Reorder(ids []int64) bool {
	return c.store.Reorder(ids)
}

// Shutdown stops the push subscription and waits for background work.
func (c *Coordinator) Shutdown(timeout time.Duration) {
	c.shutdown.Store(true)

	c.pushMu.Lock()
	if c.pushCancel != nil {
		c.pushCancel()
	}
	c.pushMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		utils.Warnf("Background work did not finish within %v", timeout)
	}
}
