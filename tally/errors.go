package tally

import (
	"errors"
	"fmt"
)

// Per-ballot failure causes. They are counted as decryption errors and
// never abort a run.
var (
	ErrTransportDecode = errors.New("ciphertext transport decoding failed")
	ErrCipher          = errors.New("ciphertext could not be decrypted")
	ErrParse           = errors.New("plaintext is not a candidate id")
)

var (
	// ErrConfigMissing is returned when a required collaborator or setting
	// is absent.
	ErrConfigMissing = errors.New("required configuration missing")
	// ErrTallyInProgress is returned by Engine.Tally while another run is
	// executing.
	ErrTallyInProgress = errors.New("a tally is already in progress")
)

// AbortReason names the fatal condition that stopped a run.
type AbortReason string

const (
	ReasonKeyUnavailable      AbortReason = "key_unavailable"
	ReasonConfigMissing       AbortReason = "config_missing"
	ReasonLedgerUnavailable   AbortReason = "ledger_unavailable"
	ReasonRegistryUnavailable AbortReason = "registry_unavailable"
	ReasonCanceled            AbortReason = "canceled"
)

// AbortedError is the single error type returned by a run that could not
// complete. Partial results are discarded.
type AbortedError struct {
	Reason AbortReason
	Err    error
}

func (e *AbortedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tally aborted (%s)", e.Reason)
	}
	return fmt.Sprintf("tally aborted (%s): %v", e.Reason, e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}

// AbortReasonOf returns the reason carried by err if it is, or wraps, an
// *AbortedError.
func AbortReasonOf(err error) (AbortReason, bool) {
	var aerr *AbortedError
	if errors.As(err, &aerr) {
		return aerr.Reason, true
	}
	return "", false
}
