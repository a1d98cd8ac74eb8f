package dataset

import "errors"

// Sentinel errors for dataset failures.
var (
	// ErrBadChunk is returned when a chunk's header or payload is
	// malformed or truncated.
	ErrBadChunk = errors.New("bad chunk")
)
