package types

import "errors"

var (
	// ErrLedgerRead is returned by ledger readers when a single read fails,
	// for example an out of range ballot index or a reverted call. It does
	// not say anything about the health of the ledger node.
	ErrLedgerRead = errors.New("ledger read failed")
	// ErrLedgerUnavailable is returned when the ledger cannot be reached at
	// all (every endpoint refused or exhausted its retries).
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
