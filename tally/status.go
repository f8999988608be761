package tally

import (
	"fmt"
	"time"
)

// Phase is a step of the run state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseKeyLoading
	PhaseFetching
	PhaseDecrypting
	PhaseCompiling
	PhaseDone
	PhaseAborted
)

var phaseNames = map[Phase]string{
	PhaseIdle:       "idle",
	PhaseKeyLoading: "key_loading",
	PhaseFetching:   "fetching",
	PhaseDecrypting: "decrypting",
	PhaseCompiling:  "compiling",
	PhaseDone:       "done",
	PhaseAborted:    "aborted",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Running reports whether the phase belongs to an in-flight run.
func (p Phase) Running() bool {
	return p != PhaseIdle && p != PhaseDone && p != PhaseAborted
}

// Status is a snapshot of the engine progress.
type Status struct {
	Phase     Phase       `json:"phase"`
	Processed uint64      `json:"processed"`
	Total     uint64      `json:"total"`
	StartedAt time.Time   `json:"startedAt,omitzero"`
	Reason    AbortReason `json:"abortReason,omitempty"`
}

// Status returns the current phase and "Processed of Total" progress.
func (e *Engine) Status() Status {
	e.mu.RLock()
	s := e.status
	e.mu.RUnlock()
	s.Processed = e.processed.Load()
	return s
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.status.Phase = p
	e.mu.Unlock()
}
