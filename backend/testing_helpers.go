package backend

// This file contains shared test helpers and mocks used across packages
// that test against a TaskBackend.

import (
	"context"
	"sync"
)

// MockCall records one call made to a MockBackend.
type MockCall struct {
	Op      string
	ID      int64
	Options FetchOptions
	Changes TaskChanges
}

// MockBackend implements LocalStore (and so TaskBackend) in memory.
// Error fields and hooks must be set before the mock is shared.
type MockBackend struct {
	mu     sync.Mutex
	source Source
	tasks  []Task
	calls  []MockCall
	nextID int64

	FetchErr  error
	CreateErr error
	UpdateErr error
	DeleteErr error

	// FetchHook, when set, replaces the stored task list for FetchTasks.
	FetchHook func(opts FetchOptions) ([]Task, error)
	// OnUpdate runs after an update is recorded and before it returns,
	// outside the mock's lock. Tests use it to act while a write is in flight.
	OnUpdate func(id int64, changes TaskChanges)
}

// NewMockBackend creates a new mock backend holding tasks.
func NewMockBackend(source Source, tasks ...Task) *MockBackend {
	mb := &MockBackend{source: source, nextID: 1000}
	mb.tasks = CloneTasks(tasks)
	return mb
}

func (mb *MockBackend) record(c MockCall) {
	mb.calls = append(mb.calls, c)
}

func (mb *MockBackend) Source() Source {
	return mb.source
}

func (mb *MockBackend) FetchTasks(ctx context.Context, opts FetchOptions) ([]Task, error) {
	mb.mu.Lock()
	mb.record(MockCall{Op: "FetchTasks", Options: opts})
	hook := mb.FetchHook
	if hook == nil {
		defer mb.mu.Unlock()
		if mb.FetchErr != nil {
			return nil, mb.FetchErr
		}
		out := CloneTasks(mb.tasks)
		SortByPriority(out)
		return out, nil
	}
	mb.mu.Unlock()
	return hook(opts)
}

func (mb *MockBackend) CreateTask(ctx context.Context, t Task) (Task, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.record(MockCall{Op: "CreateTask", ID: t.ID})
	if mb.CreateErr != nil {
		return Task{}, mb.CreateErr
	}
	if t.ID == 0 {
		mb.nextID++
		t.ID = mb.nextID
	}
	mb.tasks = append(mb.tasks, t.Clone())
	return t.Clone(), nil
}

func (mb *MockBackend) UpdateTask(ctx context.Context, id int64, changes TaskChanges) (Task, error) {
	mb.mu.Lock()
	mb.record(MockCall{Op: "UpdateTask", ID: id, Changes: changes})
	hook := mb.OnUpdate
	var (
		result Task
		err    error
	)
	if mb.UpdateErr != nil {
		err = mb.UpdateErr
	} else {
		err = NewBackendError("UpdateTask", 404, "task not found").WithTaskID(id)
		for i, t := range mb.tasks {
			if t.ID == id {
				mb.tasks[i] = changes.Apply(t)
				result = mb.tasks[i].Clone()
				err = nil
				break
			}
		}
	}
	mb.mu.Unlock()

	if hook != nil {
		hook(id, changes)
	}
	return result, err
}

func (mb *MockBackend) DeleteTask(ctx context.Context, id int64) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.record(MockCall{Op: "DeleteTask", ID: id})
	if mb.DeleteErr != nil {
		return mb.DeleteErr
	}
	for i, t := range mb.tasks {
		if t.ID == id {
			mb.tasks = append(mb.tasks[:i], mb.tasks[i+1:]...)
			return nil
		}
	}
	return NewBackendError("DeleteTask", 404, "task not found").WithTaskID(id)
}

// Load returns the stored tasks in storage order.
func (mb *MockBackend) Load(ctx context.Context) []Task {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.record(MockCall{Op: "Load"})
	return CloneTasks(mb.tasks)
}

// Save replaces the stored tasks.
func (mb *MockBackend) Save(ctx context.Context, tasks []Task) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.record(MockCall{Op: "Save"})
	mb.tasks = CloneTasks(tasks)
}

// Calls returns the recorded calls with the given op name, or all calls
// when op is empty.
func (mb *MockBackend) Calls(op string) []MockCall {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []MockCall
	for _, c := range mb.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Tasks returns a copy of the stored tasks.
func (mb *MockBackend) Tasks() []Task {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return CloneTasks(mb.tasks)
}

// StaticSession is a SessionProvider with a fixed user. An empty UserID
// means no session.
type StaticSession struct {
	UserID string
}

func (s StaticSession) HasActiveSession(ctx context.Context) bool {
	return s.UserID != ""
}

func (s StaticSession) CurrentUserID(ctx context.Context) (string, bool) {
	return s.UserID, s.UserID != ""
}
