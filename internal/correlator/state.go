package correlator

import "sync"

// batchState is owned by one RunBatch call. The slot write and the
// remaining-count decrement happen under the same lock.
type batchState struct {
	mu        sync.Mutex
	remaining int
	outcomes  []Outcome
	resolved  []bool
	closed    bool
	done      chan struct{}
}

func newBatchState(n int) *batchState {
	outcomes := make([]Outcome, n)
	for i := range outcomes {
		outcomes[i].Index = i
	}
	return &batchState{
		remaining: n,
		outcomes:  outcomes,
		resolved:  make([]bool, n),
		done:      make(chan struct{}),
	}
}

// resolve records o in its slot. It reports false for duplicates, out of
// range indices and anything arriving after the batch was abandoned.
func (s *batchState) resolve(o Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || o.Index < 0 || o.Index >= len(s.outcomes) || s.resolved[o.Index] {
		return false
	}
	s.outcomes[o.Index] = o
	s.resolved[o.Index] = true
	s.remaining--
	if s.remaining == 0 {
		s.closed = true
		close(s.done)
	}
	return true
}

// snapshot copies the outcomes and lists the indices still pending.
func (s *batchState) snapshot() ([]Outcome, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// abandon moves the batch to its terminal state; later resolves are no-ops.
func (s *batchState) abandon() ([]Outcome, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.copyLocked()
}

func (s *batchState) copyLocked() ([]Outcome, []int) {
	out := make([]Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	var unresolved []int
	for i, ok := range s.resolved {
		if !ok {
			unresolved = append(unresolved, i)
		}
	}
	return out, unresolved
}
