// Package predict defines the contract between the pipeline and the
// learned model: a feature transform that prepares raw windows and a
// predictor that maps prepared windows to per-step logit blocks.
//
// Both collaborators are injected interfaces so the core pipeline never
// depends on a concrete device-bound implementation; the reference
// implementations here are pure Go and drive the test suite and the
// synthetic-data tooling.
package predict

import (
	"context"
	"math"

	"github.com/okian/somnus/internal/domain/model"
)

// FeatureTransform prepares one raw window for the model. Apply must
// not modify the input window; it returns a new window with the same
// key and start.
type FeatureTransform interface {
	Apply(ctx context.Context, w model.Window) (model.Window, error)
}

// Predictor maps a batch of prepared windows to per-step, per-channel
// logit blocks, one block per window in batch order. Channels reports
// the per-step output width, fixed for the predictor's lifetime.
type Predictor interface {
	Forward(ctx context.Context, batch []model.Window) ([]model.Block, error)
	Channels() int
}

// Sigmoid maps a logit into (0,1). The split form avoids overflow in
// math.Exp for large negative inputs.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)

	return e / (1 + e)
}
