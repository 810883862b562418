// Package views turns the canonical task set into what the CLI and TUI
// display: filtered by view, sorted by the selected key, and annotated with
// pending-toggle state and relative date labels.
package views

import (
	"priorityforge/backend"
	"priorityforge/internal/clock"
	"priorityforge/internal/state"
)

// Item is one displayed row.
type Item struct {
	Task backend.Task
	// Pending is true while a completion toggle awaits commit.
	Pending bool
	// DisplayCompleted is the checkbox state to draw: the intended state
	// while pending, the persisted one otherwise.
	DisplayCompleted bool
	DueLabel         string
	CompletedLabel   string
}

// Projector reads a Store and produces display items.
type Projector struct {
	store *state.Store
	clock clock.Clock
}

// NewProjector creates a projector over store. A nil clock uses real time.
func NewProjector(store *state.Store, c clock.Clock) *Projector {
	if c == nil {
		c = clock.Real()
	}
	return &Projector{store: store, clock: c}
}

// Items projects the store's current view and sort key.
func (p *Projector) Items() []Item {
	return ProjectSnapshot(p.store.Snapshot(), p.clock)
}

// ProjectSnapshot projects snap. Everything is taken from one snapshot so
// the task set and pending map agree.
func ProjectSnapshot(snap state.Snapshot, c clock.Clock) []Item {
	now := c.Now()
	tasks := Project(snap.Tasks, snap.View, snap.Sort)

	items := make([]Item, len(tasks))
	for i, t := range tasks {
		intended, pending := snap.Pending[t.ID]
		display := t.Completed
		if pending {
			display = intended
		}
		item := Item{
			Task:             t,
			Pending:          pending,
			DisplayCompleted: display,
			DueLabel:         DueLabel(t.DueDate, now),
		}
		if t.Completed {
			item.CompletedLabel = CompletedLabel(t.UpdatedAt, now)
		}
		items[i] = item
	}
	return items
}
