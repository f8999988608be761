//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after
// the current last 4XXX or 5XXX. Gaps are codes that were used in the past
// and must not be reused.
var (
	ErrResourceNotFound = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody    = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam   = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrTallyInProgress  = Error{Code: 40023, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("tally in progress")}
	ErrTallyNotFound    = Error{Code: 40024, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("tally not found")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrKeyUnavailable             = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("key unavailable")}
	ErrLedgerUnavailable          = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("ledger unavailable")}
	ErrRegistryUnavailable        = Error{Code: 50005, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("registry unavailable")}
	ErrTallyCanceled              = Error{Code: 50006, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("tally canceled")}
	ErrConfigMissing              = Error{Code: 50007, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("required configuration missing")}
	ErrStorageFailed              = Error{Code: 50008, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("storage failed")}
)
