// Package config defines pipeline configuration and loading.
//
// Conventions:
// - Defaults live in New; Load layers an optional YAML file and env vars on top.
// - Validation happens once at load time, before any inference runs.
// - External errors must be wrapped via this package's sentinels.
package config

import (
	"fmt"
	"runtime"

	"github.com/okian/somnus/internal/domain/decode"
)

// EventChannel binds one model output channel to its event label.
type EventChannel struct {
	Channel int    `koanf:"channel"`
	Label   string `koanf:"label"`
}

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr configures the Prometheus listen address, e.g.
	// ":9090". Empty disables the listener.
	MetricsAddr string `koanf:"metrics_addr"`

	// ChunkDir locates the chunk store: a directory of chunk files or
	// a SQLite store when the path ends in .db.
	ChunkDir string `koanf:"chunk_dir"`

	// Weights locates the model weights artifact.
	Weights string `koanf:"weights"`

	// Output is the submission destination; "-" writes text formats to
	// stdout.
	Output string `koanf:"output"`

	// Format selects the submission writer: csv, jsonl or sqlite.
	Format string `koanf:"format"`

	// Device tags the compute device the run targets.
	Device string `koanf:"device"`

	// BatchSize bounds how many prepared windows go into one forward
	// pass.
	BatchSize int `koanf:"batch_size"`

	// Workers sets the number of feature-preparation workers; decoding
	// reuses the same bound.
	Workers int `koanf:"workers"`

	// ScoreThreshold is the decoding candidate cutoff in [0,1].
	ScoreThreshold float64 `koanf:"score_threshold"`

	// MinSeparation is the decoding radius in aggregated steps.
	MinSeparation int `koanf:"min_separation"`

	// HopLength maps aggregated steps back to the native time base.
	HopLength int `koanf:"hop_length"`

	// Events lists the channels to decode and their labels.
	Events []EventChannel `koanf:"events"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		MetricsAddr:    "",
		ChunkDir:       "chunks",
		Weights:        "weights.json",
		Output:         "submission.csv",
		Format:         "csv",
		Device:         "cpu",
		BatchSize:      16,
		Workers:        runtime.NumCPU(),
		ScoreThreshold: 0.5,
		MinSeparation:  8,
		HopLength:      1,
		Events: []EventChannel{
			{Channel: 1, Label: "onset"},
			{Channel: 2, Label: "wakeup"},
		},
	}
}

// Policy builds the decoding policy the configuration describes.
func (c *Config) Policy() decode.Policy {
	channels := make([]decode.ChannelLabel, 0, len(c.Events))
	for _, e := range c.Events {
		channels = append(channels, decode.ChannelLabel{Channel: e.Channel, Label: e.Label})
	}

	return decode.Policy{
		Threshold:     c.ScoreThreshold,
		MinSeparation: c.MinSeparation,
		Channels:      channels,
	}
}

// Validate checks the whole configuration, including the decoding
// policy domain, so a bad threshold fails here and never mid-run.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.ChunkDir == "" {
		return fmt.Errorf("%w: chunk_dir must not be empty", ErrInvalidConfig)
	}
	if c.Weights == "" {
		return fmt.Errorf("%w: weights must not be empty", ErrInvalidConfig)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: output must not be empty", ErrInvalidConfig)
	}
	if c.Format == "" {
		return fmt.Errorf("%w: format must not be empty", ErrInvalidConfig)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size %d below 1", ErrInvalidConfig, c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d below 1", ErrInvalidConfig, c.Workers)
	}
	if c.HopLength < 1 {
		return fmt.Errorf("%w: hop_length %d below 1", ErrInvalidConfig, c.HopLength)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
