package decode

import "errors"

// Sentinel errors for decoding failures.
var (
	// ErrInvalidPolicy is returned when a decoding policy fails
	// validation. Validation runs before any inference starts.
	ErrInvalidPolicy = errors.New("invalid decoding policy")
)
