package registry

import (
	"sort"
	"sync"
)

// Slots is the slot reservation table: it maps each slot label to the
// run currently holding it and enforces exclusive use. The lock is
// held only for the short reserve/release critical sections, never
// across a hardware call.
type Slots struct {
	mu     sync.Mutex
	active map[string]string // slot label -> run id
}

// NewSlots creates an empty reservation table
func NewSlots() *Slots {
	return &Slots{active: make(map[string]string)}
}

// ReserveAll reserves every requested slot for runID, or none of them.
// On conflict it returns the sorted subset of slots already held by
// another run and leaves the table untouched.
func (s *Slots) ReserveAll(slots []string, runID string) (busy []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range slots {
		if holder, ok := s.active[slot]; ok && holder != runID {
			busy = append(busy, slot)
		}
	}
	if len(busy) > 0 {
		sort.Strings(busy)
		return busy
	}

	for _, slot := range slots {
		s.active[slot] = runID
	}
	return nil
}

// Release frees a slot if it is still held by runID. Releasing a slot
// that was never reserved, or that has moved on to another run, is a
// no-op, which makes worker-side and cancel-side releases idempotent.
func (s *Slots) Release(slot, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.active[slot]; ok && holder == runID {
		delete(s.active, slot)
	}
}

// ReleaseRun frees every slot held by runID
func (s *Slots) ReleaseRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, holder := range s.active {
		if holder == runID {
			delete(s.active, slot)
		}
	}
}

// Holder returns the run currently holding a slot, if any
func (s *Slots) Holder(slot string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID, ok := s.active[slot]
	return runID, ok
}

// Snapshot returns a copy of the reservation table
func (s *Slots) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.active))
	for k, v := range s.active {
		out[k] = v
	}
	return out
}
