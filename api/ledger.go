package api

import (
	"net/http"
	"strconv"

	"github.com/vocdoni/evote-tally/tally"
	"github.com/vocdoni/evote-tally/types"
)

// health reports the ledger connectivity.
// GET /health
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	connected, block := a.ledger.Connected(r.Context())
	status := "healthy"
	if !connected {
		status = "degraded"
	}
	providers := a.ledger.Providers()
	if providers == nil {
		providers = []string{}
	}
	resp := &HealthResponse{
		Status:          status,
		ContractAddress: a.contract,
		Providers:       providers,
		Connected:       connected,
		ChainID:         a.ledger.NetworkID(),
		BlockNumber:     block,
	}
	if connected {
		// best effort, older deployments lack getVotingStatus
		if voting, err := a.ledger.VotingStatus(r.Context()); err == nil {
			resp.Voting = voting
		}
	}
	httpWriteJSON(w, resp)
}

// candidates returns the candidate registry as stored on chain.
// GET /candidates
func (a *API) candidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := a.tallier.ListCandidates(r.Context())
	if err != nil {
		ErrLedgerUnavailable.WithErr(err).Write(w)
		return
	}
	if candidates == nil {
		candidates = []types.Candidate{}
	}
	httpWriteJSON(w, &CandidatesResponse{Candidates: candidates})
}

// votes returns the metadata of the first ballots, without decrypting them.
// GET /votes?limit=<n>
func (a *API) votes(w http.ResponseWriter, r *http.Request) {
	limit := tally.DefaultSummaryLimit
	if s := r.URL.Query().Get(VotesLimitParam); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > tally.MaxSummaryLimit {
			ErrMalformedParam.Withf("%s must be an integer between 1 and %d", VotesLimitParam, tally.MaxSummaryLimit).Write(w)
			return
		}
		limit = n
	}
	summary, err := a.tallier.VoteSummary(r.Context(), limit)
	if err != nil {
		ErrLedgerUnavailable.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, summary)
}
