package experiment

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/agokrani/moltbook-api/internal/metrics"
)

// pendingRegistry tracks nudge timers that have been scheduled but not yet
// fired in this process. It exists so shutdown can cancel cleanly and so the
// status endpoint can report the pending count; it is not a durability
// mechanism. Entries are keyed by assignment id.
type pendingRegistry struct {
	mu     sync.Mutex
	timers map[uuid.UUID]clockwork.Timer
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{timers: make(map[uuid.UUID]clockwork.Timer)}
}

func (r *pendingRegistry) add(assignmentID uuid.UUID, timer clockwork.Timer) {
	r.mu.Lock()
	r.timers[assignmentID] = timer
	r.mu.Unlock()
	metrics.PendingNudges.Inc()
}

// remove drops the entry. Returns false if the entry was already gone, which
// happens when shutdown cancelled the timer between fire and removal.
func (r *pendingRegistry) remove(assignmentID uuid.UUID) bool {
	r.mu.Lock()
	_, ok := r.timers[assignmentID]
	if ok {
		delete(r.timers, assignmentID)
	}
	r.mu.Unlock()
	if ok {
		metrics.PendingNudges.Dec()
	}
	return ok
}

func (r *pendingRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// cancelAll stops every pending timer and empties the registry. Returns the
// number of timers cancelled.
func (r *pendingRegistry) cancelAll() int {
	r.mu.Lock()
	cancelled := len(r.timers)
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	metrics.PendingNudges.Sub(float64(cancelled))
	return cancelled
}
