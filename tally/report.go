package tally

import (
	"math"
	"slices"

	"github.com/vocdoni/evote-tally/types"
)

const (
	MessageCompleted = "Vote tallying completed"
	MessageNoBallots = "No votes to tally"
)

// CandidateResult is one row of the final report.
type CandidateResult struct {
	CandidateID uint64 `json:"candidateId" cbor:"1,keyasint"`
	Name        string `json:"name" cbor:"2,keyasint"`
	Votes       uint64 `json:"votes" cbor:"3,keyasint"`
}

// Report is the outcome of a completed run.
type Report struct {
	TotalBallotsProcessed uint64            `json:"totalVotesProcessed" cbor:"1,keyasint"`
	DecryptionErrors      uint64            `json:"decryptionErrors" cbor:"2,keyasint"`
	PerCandidate          []CandidateResult `json:"results" cbor:"3,keyasint"`
	NoBallots             bool              `json:"noBallots" cbor:"4,keyasint"`
	Message               string            `json:"message" cbor:"5,keyasint"`
}

// EmptyReport is returned when the ledger holds no ballots.
func EmptyReport() *Report {
	return &Report{
		PerCandidate: []CandidateResult{},
		NoBallots:    true,
		Message:      MessageNoBallots,
	}
}

// ValidBallots is the number of ballots that decrypted to an integer.
func (r *Report) ValidBallots() uint64 {
	return r.TotalBallotsProcessed - r.DecryptionErrors
}

// CountedVotes is the sum of the votes of every registered candidate.
func (r *Report) CountedVotes() uint64 {
	var n uint64
	for _, row := range r.PerCandidate {
		n += row.Votes
	}
	return n
}

// ReconciliationGap is the number of valid ballots that selected a
// candidate id absent from the registry.
func (r *Report) ReconciliationGap() uint64 {
	return r.ValidBallots() - r.CountedVotes()
}

// Compile joins the accumulated counts with the candidate registry. It
// produces one row per registered candidate in increasing id order. Ids not
// in the registry are left out and show up as ReconciliationGap. Compile does
// not modify its inputs.
func Compile(state *State, registry []types.Candidate) *Report {
	candidates := slices.Clone(registry)
	types.SortCandidates(candidates)
	candidates = slices.CompactFunc(candidates, func(a, b types.Candidate) bool {
		return a.ID == b.ID
	})

	report := &Report{
		TotalBallotsProcessed: state.Processed,
		DecryptionErrors:      state.Failures,
		PerCandidate:          make([]CandidateResult, 0, len(candidates)),
		Message:               MessageCompleted,
	}
	for _, c := range candidates {
		var votes uint64
		if c.ID <= math.MaxInt64 {
			votes = state.Counts[int64(c.ID)]
		}
		report.PerCandidate = append(report.PerCandidate, CandidateResult{
			CandidateID: c.ID,
			Name:        c.Name,
			Votes:       votes,
		})
	}
	return report
}
