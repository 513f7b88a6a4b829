package model

import "github.com/rotisserie/eris"

// Error taxonomy for the run pipeline. Per-bot failures are absorbed at the
// registry and recorded on the bot task; only total failure surfaces as a
// run-level error.
var (
	// ErrInvalidInput marks malformed search criteria. Rejected before
	// dispatch; no run is created.
	ErrInvalidInput = eris.New("invalid input")

	// ErrSourceUnavailable marks a bot adapter failure. Recorded per bot,
	// never aborts the run.
	ErrSourceUnavailable = eris.New("source unavailable")

	// ErrTimeout marks a bot that exceeded its allotted time. Treated the
	// same as ErrSourceUnavailable for finalization.
	ErrTimeout = eris.New("timeout")

	// ErrNoData marks a run where every bot failed or produced zero
	// eligible records.
	ErrNoData = eris.New("no data")

	// ErrRunNotFound marks a lookup for an unknown run identifier.
	ErrRunNotFound = eris.New("run not found")
)
