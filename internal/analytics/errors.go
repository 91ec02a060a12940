package analytics

import "errors"

var (
	// ErrInsufficientData means there are too few samples for a meaningful
	// statistic. Callers treat it as "no result".
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidInput means the engine received malformed input, which a
	// correct ledger reader never produces.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDataUnavailable means the ledger read failed or timed out. It is
	// transient and retryable by the caller.
	ErrDataUnavailable = errors.New("data unavailable")
)
