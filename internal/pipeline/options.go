package pipeline

import (
	"github.com/okian/somnus/pkg/logger"
)

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithWorkers sets the number of feature-preparation workers.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithBatchSize sets how many prepared windows go into one forward
// pass.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithDevice records the compute device tag the run targets. The tag
// travels with the run explicitly instead of living in process-global
// state; reference predictors only log it.
func WithDevice(device string) Option {
	return func(r *Runner) {
		if device != "" {
			r.device = device
		}
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}
