// Package state holds the canonical in-memory task set, the pending
// completion transitions and the view state. Every mutation goes through a
// Store method; compound check-and-mutate steps are single methods so they
// cannot interleave with other goroutines.
package state

import (
	"sort"
	"sync"

	"priorityforge/backend"
	"priorityforge/internal/utils"
)

// ToggleResult describes what StartOrCancelTransition did.
type ToggleResult struct {
	// Started is true when a new pending transition was created and false
	// when an existing one was cancelled.
	Started  bool
	Intended bool
}

// Snapshot is a consistent copy of everything presentation reads.
type Snapshot struct {
	Tasks          []backend.Task
	Pending        map[int64]bool
	View           backend.ViewMode
	Sort           backend.SortKey
	Source         backend.Source
	EditingID      int64
	ShowCreateForm bool
	Loading        bool
	Error          string
}

// Store is the single owner of the task mapping, the pending transition
// map and the view state.
type Store struct {
	mu      sync.Mutex
	order   []int64
	tasks   map[int64]backend.Task
	pending map[int64]PendingTransition

	view           backend.ViewMode
	sortKey        backend.SortKey
	source         backend.Source
	editingID      int64
	showCreateForm bool
	loading        bool
	lastErr        string

	listeners  map[int]func()
	listenerID int
}

// NewStore returns an empty store showing the active view sorted by
// difficulty.
func NewStore() *Store {
	return &Store{
		tasks:     make(map[int64]backend.Task),
		pending:   make(map[int64]PendingTransition),
		view:      backend.ViewActive,
		sortKey:   backend.SortDifficulty,
		source:    backend.SourceLocal,
		listeners: make(map[int]func()),
	}
}

// OnChange registers fn to run after every state change. fn runs on the
// goroutine that made the change, after the store lock is released. The
// returned function unregisters it.
func (s *Store) OnChange(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listenerID++
	id := s.listenerID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// update runs fn under the lock and notifies listeners if fn reports a change.
func (s *Store) update(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	var listeners []func()
	if changed {
		listeners = make([]func(), 0, len(s.listeners))
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l()
	}
	return changed
}

// Tasks returns the canonical task set in canonical order.
func (s *Store) Tasks() []backend.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasksLocked()
}

func (s *Store) tasksLocked() []backend.Task {
	out := make([]backend.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// Task returns the task with the given id.
func (s *Store) Task(id int64) (backend.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t.Clone(), ok
}

// Has reports whether id is in the canonical set.
func (s *Store) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Snapshot returns a consistent copy of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make(map[int64]bool, len(s.pending))
	for id, p := range s.pending {
		pending[id] = p.Intended
	}
	return Snapshot{
		Tasks:          s.tasksLocked(),
		Pending:        pending,
		View:           s.view,
		Sort:           s.sortKey,
		Source:         s.source,
		EditingID:      s.editingID,
		ShowCreateForm: s.showCreateForm,
		Loading:        s.loading,
		Error:          s.lastErr,
	}
}

// ReplaceAll swaps in a new task set in the given order and records where
// it came from. Duplicate ids keep their first occurrence. Pending
// transitions for ids that disappear are cancelled.
func (s *Store) ReplaceAll(tasks []backend.Task, source backend.Source) {
	s.update(func() bool {
		s.order = s.order[:0]
		s.tasks = make(map[int64]backend.Task, len(tasks))
		for _, t := range tasks {
			if _, dup := s.tasks[t.ID]; dup {
				utils.Debugf("ReplaceAll: dropping duplicate task id %d", t.ID)
				continue
			}
			s.tasks[t.ID] = t.Clone()
			s.order = append(s.order, t.ID)
		}
		for id, p := range s.pending {
			if _, ok := s.tasks[id]; !ok {
				p.Token.Stop()
				delete(s.pending, id)
			}
		}
		if _, ok := s.tasks[s.editingID]; !ok {
			s.editingID = 0
		}
		s.source = source
		return true
	})
}

// InsertIfAbsent adds t unless its id is already present, then re-sorts the
// canonical order by priority descending and due date ascending. It reports
// whether t was added.
func (s *Store) InsertIfAbsent(t backend.Task) bool {
	return s.update(func() bool {
		if _, ok := s.tasks[t.ID]; ok {
			return false
		}
		s.tasks[t.ID] = t.Clone()
		s.order = append(s.order, t.ID)
		s.sortByPriorityLocked()
		return true
	})
}

func (s *Store) sortByPriorityLocked() {
	sort.SliceStable(s.order, func(i, j int) bool {
		return backend.LessByPriority(s.tasks[s.order[i]], s.tasks[s.order[j]])
	})
}

// ReplaceIfPresent overwrites the task with t's id, keeping its position.
// It is a no-op when the id is unknown.
func (s *Store) ReplaceIfPresent(t backend.Task) bool {
	return s.update(func() bool {
		if _, ok := s.tasks[t.ID]; !ok {
			return false
		}
		s.tasks[t.ID] = t.Clone()
		return true
	})
}

// Remove cancels any pending transition for id and then removes the task.
func (s *Store) Remove(id int64) bool {
	return s.update(func() bool {
		if p, ok := s.pending[id]; ok {
			p.Token.Stop()
			delete(s.pending, id)
		}
		if _, ok := s.tasks[id]; !ok {
			return false
		}
		delete(s.tasks, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		if s.editingID == id {
			s.editingID = 0
		}
		return true
	})
}

// Reorder moves ids to the front of the canonical order in the given
// sequence. Unknown ids are ignored.
func (s *Store) Reorder(ids []int64) bool {
	return s.update(func() bool {
		seen := make(map[int64]bool, len(ids))
		front := make([]int64, 0, len(ids))
		for _, id := range ids {
			if _, ok := s.tasks[id]; ok && !seen[id] {
				seen[id] = true
				front = append(front, id)
			}
		}
		if len(front) == 0 {
			return false
		}
		rest := make([]int64, 0, len(s.order))
		for _, id := range s.order {
			if !seen[id] {
				rest = append(rest, id)
			}
		}
		s.order = append(front, rest...)
		return true
	})
}

// SetLoading sets the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.update(func() bool {
		if s.loading == loading {
			return false
		}
		s.loading = loading
		return true
	})
}

// Loading reports whether a load is in progress.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Source returns where the current task set came from.
func (s *Store) Source() backend.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// SetSource records where the current task set came from.
func (s *Store) SetSource(src backend.Source) {
	s.update(func() bool {
		if s.source == src {
			return false
		}
		s.source = src
		return true
	})
}
