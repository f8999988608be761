package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint   = "/ping"   // GET: Liveness check
	HealthEndpoint = "/health" // GET: Ledger connectivity

	// Registry and ledger endpoints
	CandidatesEndpoint = "/candidates" // GET: Candidate registry as stored on chain
	VotesEndpoint      = "/votes"      // GET: Encrypted ballot metadata
	VotesLimitParam    = "limit"       // URL query param for the number of ballots

	// Tally endpoints
	TallyEndpoint       = "/tally"                  // POST: Run a tally
	TallyStatusEndpoint = TallyEndpoint + "/status" // GET: Progress of the current run
	TalliesEndpoint     = "/tallies"                // GET: Stored runs, newest first

	// GET: One stored run with its report and digest
	RunIDURLParam       = "runId"
	TallyRecordEndpoint = TalliesEndpoint + "/{" + RunIDURLParam + "}"
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. Used to build fully qualified
// endpoint URLs.
func EndpointWithParam(path, key, param string) string {
	rawKey := fmt.Sprintf("{%s}", key)

	if strings.Contains(path, rawKey) {
		return strings.Replace(path, rawKey, url.PathEscape(param), 1)
	}

	// Fallback: add as query param
	escapedKey := url.QueryEscape(key)
	escapedVal := url.QueryEscape(param)

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s%s=%s", path, sep, escapedKey, escapedVal)
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
	HealthEndpoint,
	TallyStatusEndpoint,
}
