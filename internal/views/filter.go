package views

import (
	"sort"
	"time"

	"priorityforge/backend"
)

// Project returns the tasks visible in view, ordered by key. Filtering only
// looks at the persisted Completed flag, so a task never changes views while
// a toggle is pending. The input slice is not modified.
func Project(tasks []backend.Task, view backend.ViewMode, key backend.SortKey) []backend.Task {
	filtered := ApplyFilter(tasks, view)
	ApplySort(filtered, key)
	return filtered
}

// ApplyFilter keeps open tasks for the active view and completed tasks for
// the history view.
func ApplyFilter(tasks []backend.Task, view backend.ViewMode) []backend.Task {
	wantCompleted := view == backend.ViewHistory

	filtered := make([]backend.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Completed == wantCompleted {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

// ApplySort sorts tasks in place. Ties keep their input order; SortNone
// keeps the input order entirely.
func ApplySort(tasks []backend.Task, key backend.SortKey) {
	var less func(a, b backend.Task) bool

	switch key {
	case backend.SortDifficulty:
		less = func(a, b backend.Task) bool { return a.Difficulty > b.Difficulty }
	case backend.SortUrgency:
		less = func(a, b backend.Task) bool { return a.Urgency > b.Urgency }
	case backend.SortDueDate:
		less = func(a, b backend.Task) bool { return compareDates(a.DueDate, b.DueDate, true) }
	default:
		return
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return less(tasks[i], tasks[j])
	})
}

// compareDates compares two date pointers, handling nil values
// nilsLast determines whether nil values should be considered greater than non-nil
func compareDates(a, b *time.Time, nilsLast bool) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return !nilsLast
	}
	if b == nil {
		return nilsLast
	}
	return a.Before(*b)
}
