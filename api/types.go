package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/evote-tally/storage"
	"github.com/vocdoni/evote-tally/tally"
	"github.com/vocdoni/evote-tally/types"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string              `json:"status"`
	ContractAddress common.Address      `json:"contractAddress"`
	Providers       []string            `json:"providers"`
	Connected       bool                `json:"connected"`
	ChainID         uint64              `json:"chainId"`
	BlockNumber     uint64              `json:"blockNumber,omitempty"`
	Voting          *types.VotingStatus `json:"voting,omitempty"`
}

// CandidatesResponse is returned by GET /candidates.
type CandidatesResponse struct {
	Candidates []types.Candidate `json:"candidates"`
}

// TallyResponse is returned by POST /tally and GET /tallies/{runId}.
type TallyResponse struct {
	RunID                 string                  `json:"runId"`
	Message               string                  `json:"message"`
	TotalBallotsProcessed uint64                  `json:"totalVotesProcessed"`
	DecryptionErrors      uint64                  `json:"decryptionErrors"`
	CountedVotes          uint64                  `json:"countedVotes"`
	ReconciliationGap     uint64                  `json:"reconciliationGap"`
	Results               []tally.CandidateResult `json:"results"`
	StartedAt             time.Time               `json:"startedAt"`
	FinishedAt            time.Time               `json:"finishedAt"`
	ContractAddress       common.Address          `json:"contractAddress"`
	ChainID               uint64                  `json:"chainId"`
	Digest                types.HexBytes          `json:"digest"`
}

// TalliesResponse is returned by GET /tallies.
type TalliesResponse struct {
	Tallies []storage.TallyRecordSummary `json:"tallies"`
}

func tallyResponse(rec *storage.TallyRecord) *TallyResponse {
	r := rec.Report
	results := r.PerCandidate
	if results == nil {
		results = []tally.CandidateResult{}
	}
	return &TallyResponse{
		RunID:                 rec.ID,
		Message:               r.Message,
		TotalBallotsProcessed: r.TotalBallotsProcessed,
		DecryptionErrors:      r.DecryptionErrors,
		CountedVotes:          r.CountedVotes(),
		ReconciliationGap:     r.ReconciliationGap(),
		Results:               results,
		StartedAt:             rec.StartedAt,
		FinishedAt:            rec.FinishedAt,
		ContractAddress:       rec.Contract,
		ChainID:               rec.ChainID,
		Digest:                rec.Digest,
	}
}
