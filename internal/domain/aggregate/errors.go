package aggregate

import "errors"

// Sentinel errors for aggregation failures.
var (
	// ErrShapeMismatch is returned when a block's geometry does not match
	// the aggregator's configured channel count or the window placement.
	ErrShapeMismatch = errors.New("block shape mismatch")

	// ErrCoverageGap is returned by Seal when a series has steps no
	// window ever covered.
	ErrCoverageGap = errors.New("series coverage gap")

	// ErrNotSealed is returned when series data is read before Seal.
	ErrNotSealed = errors.New("aggregator not sealed")

	// ErrSealed is returned when a write arrives after Seal.
	ErrSealed = errors.New("aggregator already sealed")

	// ErrUnknownSeries is returned when a series key was never added.
	ErrUnknownSeries = errors.New("unknown series")
)
