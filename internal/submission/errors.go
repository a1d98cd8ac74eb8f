package submission

import "errors"

// Sentinel errors for submission failures.
var (
	// ErrUnknownFormat is returned when no writer is registered for the
	// requested output format.
	ErrUnknownFormat = errors.New("unknown output format")
)
