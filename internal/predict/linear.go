package predict

import (
	"context"
	"fmt"

	"github.com/okian/somnus/internal/domain/model"
)

// StandardizeTransform implements FeatureTransform with the artifact's
// per-feature moments: (x - mean) / std.
type StandardizeTransform struct {
	mean []float64
	std  []float64
}

// NewStandardizeTransform builds the transform from validated weights.
func NewStandardizeTransform(w *Weights) *StandardizeTransform {
	return &StandardizeTransform{mean: w.Mean, std: w.Std}
}

// Apply standardizes every feature of the window into a fresh backing
// slice; the input stays untouched.
func (t *StandardizeTransform) Apply(ctx context.Context, w model.Window) (model.Window, error) {
	if err := ctx.Err(); err != nil {
		return model.Window{}, fmt.Errorf("standardize series %q: %w", w.SeriesKey, err)
	}
	dim := len(t.mean)
	if w.FeatureDim != dim {
		return model.Window{}, fmt.Errorf("standardize series %q: window feature dim %d, want %d",
			w.SeriesKey, w.FeatureDim, dim)
	}

	out := make([]float64, len(w.Features))
	for i, v := range w.Features {
		j := i % dim
		out[i] = (v - t.mean[j]) / t.std[j]
	}

	return model.Window{
		SeriesKey:  w.SeriesKey,
		Start:      w.Start,
		FeatureDim: w.FeatureDim,
		Features:   out,
	}, nil
}

// LinearPredictor implements Predictor with the artifact's per-channel
// affine map. It emits logits; the pipeline applies the sigmoid.
type LinearPredictor struct {
	weight [][]float64
	bias   []float64
	dim    int
}

// NewLinearPredictor builds the predictor from validated weights.
func NewLinearPredictor(w *Weights) *LinearPredictor {
	return &LinearPredictor{weight: w.Weight, bias: w.Bias, dim: w.FeatureDim}
}

// Channels returns the per-step output width.
func (p *LinearPredictor) Channels() int {
	return len(p.bias)
}

// Forward maps each window to a logit block, one block per window in
// batch order.
func (p *LinearPredictor) Forward(ctx context.Context, batch []model.Window) ([]model.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}

	blocks := make([]model.Block, len(batch))
	for bi, w := range batch {
		if w.FeatureDim != p.dim {
			return nil, fmt.Errorf("forward series %q: window feature dim %d, want %d",
				w.SeriesKey, w.FeatureDim, p.dim)
		}
		steps := w.Steps()
		b := model.NewBlock(steps, len(p.bias))
		for step := 0; step < steps; step++ {
			row := w.Row(step)
			for ch := range p.bias {
				sum := p.bias[ch]
				for j, v := range row {
					sum += p.weight[ch][j] * v
				}
				b.Set(step, ch, sum)
			}
		}
		blocks[bi] = b
	}

	return blocks, nil
}
