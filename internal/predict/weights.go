package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
)

// artifactVersion is the only weights format this build understands.
const artifactVersion = 1

// Weights is the model artifact: per-feature standardization moments
// plus a per-channel affine map from features to logits.
type Weights struct {
	Version    int         `json:"version"`
	FeatureDim int         `json:"feature_dim"`
	Channels   int         `json:"channels"`
	Mean       []float64   `json:"mean"`
	Std        []float64   `json:"std"`
	Weight     [][]float64 `json:"weight"` // [Channels][FeatureDim]
	Bias       []float64   `json:"bias"`   // [Channels]
}

// LoadWeights reads and validates the artifact at path. It fails fast:
// a missing or corrupt artifact is reported before any batch runs.
func LoadWeights(path string) (*Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("weights %q: %w", path, ErrMissingWeights)
		}

		return nil, fmt.Errorf("read weights %q: %w", path, err)
	}

	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("weights %q: %v: %w", path, err, ErrCorruptWeights)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("weights %q: %w", path, err)
	}

	return &w, nil
}

// SaveWeights validates and writes the artifact to path.
func SaveWeights(path string, w *Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // artifact is world-readable on purpose
		return fmt.Errorf("write weights %q: %w", path, err)
	}

	return nil
}

// Validate checks version, shapes and numeric sanity.
func (w *Weights) Validate() error {
	if w.Version != artifactVersion {
		return fmt.Errorf("unsupported version %d, want %d: %w", w.Version, artifactVersion, ErrCorruptWeights)
	}
	if w.FeatureDim < 1 {
		return fmt.Errorf("feature dim %d below 1: %w", w.FeatureDim, ErrCorruptWeights)
	}
	if w.Channels < 1 {
		return fmt.Errorf("channel count %d below 1: %w", w.Channels, ErrCorruptWeights)
	}
	if len(w.Mean) != w.FeatureDim {
		return fmt.Errorf("mean has %d entries, want %d: %w", len(w.Mean), w.FeatureDim, ErrCorruptWeights)
	}
	if len(w.Std) != w.FeatureDim {
		return fmt.Errorf("std has %d entries, want %d: %w", len(w.Std), w.FeatureDim, ErrCorruptWeights)
	}
	if len(w.Weight) != w.Channels {
		return fmt.Errorf("weight has %d rows, want %d: %w", len(w.Weight), w.Channels, ErrCorruptWeights)
	}
	if len(w.Bias) != w.Channels {
		return fmt.Errorf("bias has %d entries, want %d: %w", len(w.Bias), w.Channels, ErrCorruptWeights)
	}

	for i, v := range w.Std {
		if !finite(v) || v <= 0 {
			return fmt.Errorf("std[%d] = %v not a positive finite number: %w", i, v, ErrCorruptWeights)
		}
	}
	for i, v := range w.Mean {
		if !finite(v) {
			return fmt.Errorf("mean[%d] = %v not finite: %w", i, v, ErrCorruptWeights)
		}
	}
	for ch, row := range w.Weight {
		if len(row) != w.FeatureDim {
			return fmt.Errorf("weight[%d] has %d entries, want %d: %w", ch, len(row), w.FeatureDim, ErrCorruptWeights)
		}
		for j, v := range row {
			if !finite(v) {
				return fmt.Errorf("weight[%d][%d] = %v not finite: %w", ch, j, v, ErrCorruptWeights)
			}
		}
	}
	for ch, v := range w.Bias {
		if !finite(v) {
			return fmt.Errorf("bias[%d] = %v not finite: %w", ch, v, ErrCorruptWeights)
		}
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
