package poller

import "sync"

// PollState is the last fully processed block height. It only moves forward.
type PollState struct {
	mu          sync.RWMutex
	last        uint64
	initialized bool
}

// Last returns the height and whether it has been initialized.
func (s *PollState) Last() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.initialized
}

// Advance moves the state to height. Lower heights are ignored.
func (s *PollState) Advance(height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized || height > s.last {
		s.last = height
	}
	s.initialized = true
}
