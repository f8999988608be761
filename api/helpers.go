package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/tally"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
		return
	}
	if !DisabledLogging && log.Level() == log.LogLevelDebug {
		log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
	}
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// tallyError maps an error returned by a tally run to its API error.
func tallyError(err error) Error {
	if errors.Is(err, tally.ErrTallyInProgress) {
		return ErrTallyInProgress
	}
	reason, ok := tally.AbortReasonOf(err)
	if !ok {
		return ErrStorageFailed.WithErr(err)
	}
	switch reason {
	case tally.ReasonKeyUnavailable:
		return ErrKeyUnavailable.WithErr(err)
	case tally.ReasonLedgerUnavailable:
		return ErrLedgerUnavailable.WithErr(err)
	case tally.ReasonRegistryUnavailable:
		return ErrRegistryUnavailable.WithErr(err)
	case tally.ReasonCanceled:
		return ErrTallyCanceled.WithErr(err)
	case tally.ReasonConfigMissing:
		return ErrConfigMissing.WithErr(err)
	default:
		return ErrGenericInternalServerError.WithErr(err)
	}
}
