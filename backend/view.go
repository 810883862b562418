package backend

import (
	"fmt"
	"strings"
)

// ViewMode filters tasks by their persisted completion state.
type ViewMode string

const (
	ViewActive  ViewMode = "active"
	ViewHistory ViewMode = "history"
)

// SortKey selects the ordering of the projected list.
type SortKey string

const (
	SortDifficulty SortKey = "difficulty"
	SortUrgency    SortKey = "urgency"
	SortDueDate    SortKey = "due_date"
	// SortNone keeps the canonical (manually reordered) order.
	SortNone SortKey = "none"
)

// SortKeys lists the sort keys in the order the UI cycles through them.
var SortKeys = []SortKey{SortDifficulty, SortUrgency, SortDueDate, SortNone}

// Source names the backend that produced the current task set.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// ParseViewMode accepts "active" or "history" (case-insensitive).
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case ViewActive:
		return ViewActive, nil
	case ViewHistory:
		return ViewHistory, nil
	}
	return "", fmt.Errorf("unknown view %q (want active or history)", s)
}

// ParseSortKey accepts the sort key names, plus "due" and "due-date" aliases.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "difficulty":
		return SortDifficulty, nil
	case "urgency":
		return SortUrgency, nil
	case "due_date", "due-date", "due":
		return SortDueDate, nil
	case "none", "manual":
		return SortNone, nil
	}
	return "", fmt.Errorf("unknown sort key %q (want difficulty, urgency, due_date or none)", s)
}

// Next returns the sort key after k in SortKeys, wrapping around.
func (k SortKey) Next() SortKey {
	for i, key := range SortKeys {
		if key == k {
			return SortKeys[(i+1)%len(SortKeys)]
		}
	}
	return SortKeys[0]
}
