package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vocdoni/evote-tally/storage"
)

// tally runs a complete tally and returns its report.
// POST /tally
func (a *API) tally(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.tallyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.tallyTimeout)
		defer cancel()
	}
	rec, err := a.tallier.Tally(ctx)
	if err != nil {
		tallyError(err).Write(w)
		return
	}
	httpWriteJSON(w, tallyResponse(rec))
}

// tallyStatus returns the phase and progress of the current or last run.
// GET /tally/status
func (a *API) tallyStatus(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, a.tallier.Status())
}

// tallies lists the stored runs, newest first.
// GET /tallies
func (a *API) tallies(w http.ResponseWriter, r *http.Request) {
	records, err := a.tallier.TallyRecords()
	if err != nil {
		ErrStorageFailed.WithErr(err).Write(w)
		return
	}
	resp := &TalliesResponse{Tallies: make([]storage.TallyRecordSummary, 0, len(records))}
	for _, rec := range records {
		resp.Tallies = append(resp.Tallies, rec.Summary())
	}
	httpWriteJSON(w, resp)
}

// tallyRecord returns one stored run.
// GET /tallies/{runId}
func (a *API) tallyRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, RunIDURLParam)
	if id == "" {
		ErrMalformedParam.With("missing run id").Write(w)
		return
	}
	rec, err := a.tallier.TallyRecord(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrTallyNotFound.With(id).Write(w)
			return
		}
		ErrStorageFailed.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, tallyResponse(rec))
}
