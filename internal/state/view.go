package state

import "priorityforge/backend"

// View returns the current view filter.
func (s *Store) View() backend.ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetView changes the view filter.
func (s *Store) SetView(v backend.ViewMode) {
	s.update(func() bool {
		if s.view == v {
			return false
		}
		s.view = v
		return true
	})
}

// SortKey returns the current sort key.
func (s *Store) SortKey() backend.SortKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortKey
}

// SetSortKey changes the sort key.
func (s *Store) SetSortKey(k backend.SortKey) {
	s.update(func() bool {
		if s.sortKey == k {
			return false
		}
		s.sortKey = k
		return true
	})
}

// EditingID returns the id of the task being edited, if any.
func (s *Store) EditingID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editingID, s.editingID != 0
}

// StartEditing marks id as the task being edited, replacing any previous
// one. It fails when id is unknown.
func (s *Store) StartEditing(id int64) bool {
	ok := false
	s.update(func() bool {
		if _, exists := s.tasks[id]; !exists {
			return false
		}
		ok = true
		if s.editingID == id {
			return false
		}
		s.editingID = id
		return true
	})
	return ok
}

// StopEditing clears the edited task.
func (s *Store) StopEditing() {
	s.update(func() bool {
		if s.editingID == 0 {
			return false
		}
		s.editingID = 0
		return true
	})
}

// ShowCreateForm reports whether the create form is open.
func (s *Store) ShowCreateForm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showCreateForm
}

// SetShowCreateForm opens or closes the create form.
func (s *Store) SetShowCreateForm(show bool) {
	s.update(func() bool {
		if s.showCreateForm == show {
			return false
		}
		s.showCreateForm = show
		return true
	})
}

// SetError publishes msg as the latest user-visible error.
func (s *Store) SetError(msg string) {
	s.update(func() bool {
		if s.lastErr == msg {
			return false
		}
		s.lastErr = msg
		return true
	})
}

// ClearError clears the latest error.
func (s *Store) ClearError() {
	s.SetError("")
}

// LastError returns the latest user-visible error, or "".
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
