package types

import (
	"cmp"
	"slices"
)

// Candidate is an entry of the on-chain candidate registry. Ids are assigned
// by the registry and start at 1. RegisteredVoteCount is the counter cached by
// the contract; it is informational and never used for tallying.
type Candidate struct {
	ID                  uint64 `json:"id"`
	Name                string `json:"name"`
	RegisteredVoteCount uint64 `json:"voteCount"`
}

// SortCandidates sorts the candidates by increasing id in place.
func SortCandidates(candidates []Candidate) {
	slices.SortFunc(candidates, func(a, b Candidate) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
