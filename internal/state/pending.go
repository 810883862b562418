package state

import (
	"sort"

	"priorityforge/backend"
	"priorityforge/internal/utils"
)

// StartOrCancelTransition is the toggle entry point. If id has a pending
// transition it is cancelled (its timer stopped) and no new one starts.
// Otherwise a transition to !completed is recorded under token.
func (s *Store) StartOrCancelTransition(id int64, token *Token) (ToggleResult, error) {
	var (
		result ToggleResult
		err    error
	)
	s.update(func() bool {
		if p, ok := s.pending[id]; ok {
			p.Token.Stop()
			delete(s.pending, id)
			result = ToggleResult{Started: false, Intended: p.Intended}
			return true
		}
		task, ok := s.tasks[id]
		if !ok {
			err = utils.ErrTaskNotFound(id)
			return false
		}
		result = ToggleResult{Started: true, Intended: !task.Completed}
		s.pending[id] = PendingTransition{Token: token, Intended: result.Intended}
		return true
	})
	return result, err
}

// TransitionValid reports whether id's pending entry still exists, holds
// exactly token, and carries intended.
func (s *Store) TransitionValid(id int64, token *Token, intended bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked(id, token, intended)
}

func (s *Store) validLocked(id int64, token *Token, intended bool) bool {
	p, ok := s.pending[id]
	return ok && p.Token == token && p.Intended == intended
}

// CompleteTransition re-validates the pending entry and, only if it is
// still current, applies the committed task and clears the entry. It
// reports whether the result was applied.
func (s *Store) CompleteTransition(id int64, token *Token, intended bool, committed backend.Task) bool {
	return s.update(func() bool {
		if !s.validLocked(id, token, intended) {
			return false
		}
		delete(s.pending, id)
		if _, ok := s.tasks[id]; ok {
			committed.ID = id
			s.tasks[id] = committed.Clone()
		}
		return true
	})
}

// AbortTransition clears id's pending entry if it still holds token. It
// reports whether it did.
func (s *Store) AbortTransition(id int64, token *Token) bool {
	return s.update(func() bool {
		p, ok := s.pending[id]
		if !ok || p.Token != token {
			return false
		}
		delete(s.pending, id)
		return true
	})
}

// CancelTransition stops and clears id's pending transition, if any.
func (s *Store) CancelTransition(id int64) bool {
	return s.update(func() bool {
		p, ok := s.pending[id]
		if !ok {
			return false
		}
		p.Token.Stop()
		delete(s.pending, id)
		return true
	})
}

// CancelAllTransitions stops and clears every pending transition and
// returns how many there were.
func (s *Store) CancelAllTransitions() int {
	n := 0
	s.update(func() bool {
		for id, p := range s.pending {
			p.Token.Stop()
			delete(s.pending, id)
			n++
		}
		return n > 0
	})
	return n
}

// Pending returns the intended completion state of id's pending
// transition.
func (s *Store) Pending(id int64) (intended bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	return p.Intended, ok
}

// PendingIDs returns the ids with a pending transition, ascending.
func (s *Store) PendingIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
