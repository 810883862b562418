package backend

import "context"

// FetchOptions narrows a fetch. An empty UserID means unfiltered.
type FetchOptions struct {
	UserID string
}

// TaskBackend is a stateless gateway to a task store. Implementations
// return tasks ordered by priority descending, then due date ascending.
type TaskBackend interface {
	FetchTasks(ctx context.Context, opts FetchOptions) ([]Task, error)
	// CreateTask stores t and returns the stored task. A zero ID asks the
	// backend to assign one.
	CreateTask(ctx context.Context, t Task) (Task, error)
	UpdateTask(ctx context.Context, id int64, changes TaskChanges) (Task, error)
	DeleteTask(ctx context.Context, id int64) error
	Source() Source
}

// LocalStore is the durable fallback used without a session. Load and
// Save never fail from the caller's point of view.
type LocalStore interface {
	TaskBackend
	Load(ctx context.Context) []Task
	Save(ctx context.Context, tasks []Task)
}

// SessionProvider reports whether an authenticated session exists.
type SessionProvider interface {
	HasActiveSession(ctx context.Context) bool
	CurrentUserID(ctx context.Context) (string, bool)
}

// PushSubscriber delivers row-level changes for one user. The returned
// channel is closed when ctx is done.
type PushSubscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan PushEvent, error)
}
