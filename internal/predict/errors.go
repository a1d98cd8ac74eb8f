package predict

import "errors"

// Sentinel errors for model-collaborator failures. Both are fatal and
// surface before the first batch is inferred.
var (
	// ErrMissingWeights is returned when the weights artifact does not
	// exist at the configured path.
	ErrMissingWeights = errors.New("missing weights artifact")

	// ErrCorruptWeights is returned when the weights artifact cannot be
	// parsed or fails shape validation.
	ErrCorruptWeights = errors.New("corrupt weights artifact")
)
