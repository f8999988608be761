package tally

import (
	"maps"
	"sync"
)

// State is a read-only snapshot of accumulated outcomes.
type State struct {
	Counts    map[int64]uint64
	Failures  uint64
	Processed uint64
}

// Selections returns the number of successfully decrypted ballots.
func (s *State) Selections() uint64 {
	var n uint64
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Accumulator counts outcomes. It is safe for concurrent use, although
// decrypt workers keep private accumulators and Merge them when done.
type Accumulator struct {
	mu        sync.Mutex
	counts    map[int64]uint64
	failures  uint64
	processed uint64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{counts: make(map[int64]uint64)}
}

// Add records exactly one outcome.
func (a *Accumulator) Add(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processed++
	if !o.IsSelected() {
		a.failures++
		return
	}
	a.counts[o.CandidateID()]++
}

// Merge adds the counts of other into a. Merging is commutative and
// associative so the order in which workers finish does not matter.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil || other == a {
		return
	}
	other.mu.Lock()
	counts := maps.Clone(other.counts)
	failures, processed := other.failures, other.processed
	other.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	for id, n := range counts {
		a.counts[id] += n
	}
	a.failures += failures
	a.processed += processed
}

// State returns a snapshot that is not affected by later Adds.
func (a *Accumulator) State() *State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &State{
		Counts:    maps.Clone(a.counts),
		Failures:  a.failures,
		Processed: a.processed,
	}
}
