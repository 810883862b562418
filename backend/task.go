package backend

import (
	"fmt"
	"strings"
	"time"
)

// Task is a single tracked item. DueDate is date-only and stored as local
// midnight. Priority is derived from Urgency, Difficulty and DueDate and is
// persisted so ordering survives a reload.
type Task struct {
	ID          int64      `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Urgency     int        `json:"urgency" yaml:"urgency"`
	Difficulty  int        `json:"difficulty" yaml:"difficulty"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Completed   bool       `json:"completed" yaml:"completed"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	Priority    float64    `json:"priority" yaml:"priority"`
	OwnerID     string     `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

func (t Task) String() string {
	var b strings.Builder
	mark := " "
	if t.Completed {
		mark = "x"
	}
	fmt.Fprintf(&b, "[%s] #%d %s (u%d d%d p%.1f)", mark, t.ID, t.Title, t.Urgency, t.Difficulty, t.Priority)
	if t.DueDate != nil {
		fmt.Fprintf(&b, " due %s", t.DueDate.Format("2006-01-02"))
	}
	return b.String()
}

// CloneTasks deep-copies a task slice.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// TaskDraft is the input for creating a task. DaysUntilDue is a convenience
// for forms; when set it wins over DueDate and is never stored.
type TaskDraft struct {
	Title        string `validate:"required"`
	Description  string
	Urgency      int `validate:"min=1,max=5"`
	Difficulty   int `validate:"min=1,max=5"`
	DueDate      *time.Time
	DaysUntilDue *int `validate:"omitempty,min=0"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string `validate:"omitempty,min=1"`
	Description  *string
	Urgency      *int `validate:"omitempty,min=1,max=5"`
	Difficulty   *int `validate:"omitempty,min=1,max=5"`
	DueDate      *time.Time
	ClearDueDate bool
	DaysUntilDue *int `validate:"omitempty,min=0"`
	Completed    *bool
}

// TouchesPriority reports whether the patch changes an input of the
// priority score.
func (p TaskPatch) TouchesPriority() bool {
	return p.Urgency != nil || p.Difficulty != nil || p.DueDate != nil || p.ClearDueDate || p.DaysUntilDue != nil
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil && !p.TouchesPriority()
}

// TaskChanges is the resolved form of a patch as written to a backend:
// due dates are normalized and Priority is already recomputed.
type TaskChanges struct {
	Title        *string
	Description  *string
	Urgency      *int
	Difficulty   *int
	DueDate      *time.Time
	ClearDueDate bool
	Completed    *bool
	Priority     *float64
	UpdatedAt    time.Time
}

// Apply returns t with the changes merged in.
func (c TaskChanges) Apply(t Task) Task {
	t = t.Clone()
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Urgency != nil {
		t.Urgency = *c.Urgency
	}
	if c.Difficulty != nil {
		t.Difficulty = *c.Difficulty
	}
	if c.ClearDueDate {
		t.DueDate = nil
	} else if c.DueDate != nil {
		d := *c.DueDate
		t.DueDate = &d
	}
	if c.Completed != nil {
		t.Completed = *c.Completed
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if !c.UpdatedAt.IsZero() {
		t.UpdatedAt = c.UpdatedAt
	}
	return t
}

// PushEventType is the kind of row change delivered by the push channel.
type PushEventType string

const (
	PushInsert PushEventType = "insert"
	PushUpdate PushEventType = "update"
	PushDelete PushEventType = "delete"
)

// PushEvent is a remote-origin change. For deletes only Task.ID is set.
type PushEvent struct {
	Type PushEventType
	Task Task
}
