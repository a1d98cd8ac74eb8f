package testchunks

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/okian/somnus/internal/domain/model"
	"github.com/okian/somnus/internal/predict"
)

// Fixed generator geometry. The model below maps a spiked feature to a
// logit of spikeLogit on its channel, and quiet noise stays far enough
// below the threshold that only planted steps decode.
const (
	featureDim    = 2
	channelCount  = 3
	spikeValue    = 1.0
	spikeLogit    = 4.0
	quietCeiling  = 0.2
	minEventStep  = 2
	hopLength     = 1
	planThreshold = 0.5

	labelOnset  = "onset"
	labelWakeup = "wakeup"
)

// modelWeights returns the fixed linear model every generated store is
// paired with: channel 1 tracks feature 0, channel 2 tracks feature 1
// and channel 0 stays quiet.
func modelWeights() *predict.Weights {
	return &predict.Weights{
		Version:    1,
		FeatureDim: featureDim,
		Channels:   channelCount,
		Mean:       []float64{0, 0},
		Std:        []float64{1, 1},
		Weight:     [][]float64{{0, 0}, {8, 0}, {0, 8}},
		Bias:       []float64{-8, -4, -4},
	}
}

func (c *Config) validate() error {
	if c.Store == "" || c.Weights == "" || c.Plan == "" {
		return fmt.Errorf("%w: store, weights and plan paths must be set", ErrBadConfig)
	}
	if c.Series < 1 {
		return fmt.Errorf("%w: at least one series required", ErrBadConfig)
	}
	if c.Steps <= minEventStep {
		return fmt.Errorf("%w: %d steps leave no room for events", ErrBadConfig, c.Steps)
	}
	if c.Window < 1 || c.Window > c.Steps {
		return fmt.Errorf("%w: window %d outside [1,%d]", ErrBadConfig, c.Window, c.Steps)
	}
	if c.Overlap < 0 || c.Overlap >= c.Window {
		return fmt.Errorf("%w: overlap %d outside [0,%d)", ErrBadConfig, c.Overlap, c.Window)
	}
	if c.Events < 1 {
		return fmt.Errorf("%w: at least one event per series required", ErrBadConfig)
	}
	if c.Separation < 1 {
		return fmt.Errorf("%w: separation %d below 1", ErrBadConfig, c.Separation)
	}

	return nil
}

// generate builds the windows and the plan for every series.
func generate(ctx context.Context, cfg *Config, rng *rand.Rand) ([]model.Window, *Plan, error) {
	plan := &Plan{
		Threshold: planThreshold,
		Hop:       hopLength,
	}

	var wins []model.Window
	for s := 0; s < cfg.Series; s++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		key := uuid.New().String()
		events, err := placeEvents(cfg, rng, key)
		if err != nil {
			return nil, nil, err
		}

		features := seriesFeatures(cfg.Steps, rng, events)
		wins = append(wins, cutWindows(key, features, cfg.Window, cfg.Overlap)...)
		plan.Events = append(plan.Events, events...)
	}

	return wins, plan, nil
}

// placeEvents spreads the planted spikes over one series. Each event
// gets its own slot of the step range, with a margin at the slot end so
// neighbours stay more than Separation apart.
func placeEvents(cfg *Config, rng *rand.Rand, key string) ([]PlannedEvent, error) {
	span := cfg.Steps - minEventStep
	slot := span / cfg.Events
	if slot <= cfg.Separation {
		return nil, fmt.Errorf("%w: %d steps cannot hold %d events %d apart",
			ErrBadConfig, cfg.Steps, cfg.Events, cfg.Separation)
	}

	events := make([]PlannedEvent, 0, cfg.Events)
	for i := 0; i < cfg.Events; i++ {
		lo := minEventStep + i*slot
		hi := lo + slot - cfg.Separation
		step := lo + rng.Intn(hi-lo)

		label := labelOnset
		if rng.Intn(2) == 1 {
			label = labelWakeup
		}

		events = append(events, PlannedEvent{
			SeriesKey:  key,
			Step:       step,
			OutputStep: (step - 1) * hopLength,
			Label:      label,
			Score:      predict.Sigmoid(spikeLogit),
		})
	}

	return events, nil
}

// seriesFeatures synthesizes the flat per-step features: quiet noise
// everywhere, a full-scale spike on the feature driving each planted
// event's channel.
func seriesFeatures(steps int, rng *rand.Rand, events []PlannedEvent) []float64 {
	features := make([]float64, steps*featureDim)
	for i := range features {
		features[i] = rng.Float64() * quietCeiling
	}
	for _, ev := range events {
		features[ev.Step*featureDim+featureIndex(ev.Label)] = spikeValue
	}

	return features
}

func featureIndex(label string) int {
	if label == labelWakeup {
		return 1
	}

	return 0
}

// cutWindows slices one series into overlapping windows. The final
// window is pulled back so coverage always reaches the series end.
func cutWindows(key string, features []float64, window, overlap int) []model.Window {
	steps := len(features) / featureDim
	stride := window - overlap

	var wins []model.Window
	start := 0
	for {
		if start+window > steps {
			start = steps - window
		}
		wins = append(wins, model.Window{
			SeriesKey:  key,
			Start:      int64(start),
			FeatureDim: featureDim,
			Features:   append([]float64(nil), features[start*featureDim:(start+window)*featureDim]...),
		})
		if start+window >= steps {
			break
		}
		start += stride
	}

	return wins
}
