package sync

import (
	"sync"

	"priorityforge/internal/clock"
)

// IDGenerator allocates ids for tasks created without a remote backend.
// Ids are microsecond timestamps, strictly increasing within the process and
// bumped past any id the caller reports as taken.
type IDGenerator struct {
	mu    sync.Mutex
	clock clock.Clock
	last  int64
}

// NewIDGenerator creates a generator reading time from c.
func NewIDGenerator(c clock.Clock) *IDGenerator {
	return &IDGenerator{clock: c}
}

// Next returns a fresh id. taken may be nil.
func (g *IDGenerator) Next(taken func(id int64) bool) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.clock.Now().UnixMicro()
	if id <= g.last {
		id = g.last + 1
	}
	for taken != nil && taken(id) {
		id++
	}
	g.last = id
	return id
}
