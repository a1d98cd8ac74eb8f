package testchunks

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrBadConfig = errors.New("bad generator config")
	ErrMismatch  = errors.New("submission mismatches plan")
)
