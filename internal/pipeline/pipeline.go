// Package pipeline runs windowed inference: a bounded worker pool
// prepares features concurrently, then exactly one consumer goroutine
// batches prepared windows through the predictor, maps logits through
// the sigmoid and hands probability blocks to the sink.
//
// The forward pass is the only suspension point. The sink is invoked
// only from the consumer, so a single-writer aggregator downstream
// needs no extra coordination. Any transform, forward or sink failure
// aborts the whole run; windows are never silently skipped.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/somnus/internal/dataset"
	"github.com/okian/somnus/internal/domain/model"
	"github.com/okian/somnus/internal/predict"
	"github.com/okian/somnus/pkg/logger"
	"github.com/okian/somnus/pkg/metrics"
)

// Default runner configuration constants.
const (
	defaultBatchSize = 16
	defaultDevice    = "cpu"
)

// Sink receives one probability block per window, always from the
// consumer goroutine.
type Sink func(w model.Window, b model.Block) error

// Stats summarizes one finished run.
type Stats struct {
	Windows int // windows delivered to the sink
	Batches int // forward passes
}

// Runner drives one windowed-inference run.
type Runner struct {
	workers   int
	batchSize int
	device    string
	logger    logger.Logger
}

// NewRunner creates a runner with configuration options.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		workers:   runtime.NumCPU(),
		batchSize: defaultBatchSize,
		device:    defaultDevice,
		logger:    logger.Get().Named("pipeline"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run streams windows from src, prepares them with tf, infers with p
// and hands each probability block to sink. The first error from any
// stage cancels the run and is returned after the workers drain.
func (r *Runner) Run(ctx context.Context, src dataset.Source, tf predict.FeatureTransform, p predict.Predictor, sink Sink) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.logger.Info(ctx, "starting inference run",
		logger.String("device", r.device),
		logger.Int("workers", r.workers),
		logger.Int("batch_size", r.batchSize),
		logger.Int("windows", src.Count()),
	)
	metrics.UpdateWorkerCount(r.workers)

	var (
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	windows, srcErrs := src.Stream(ctx)
	prepared := make(chan model.Window, r.batchSize)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for win := range windows {
				if ctx.Err() != nil {
					continue // drain without work once the run is aborting
				}

				start := time.Now()
				out, err := tf.Apply(ctx, win)
				metrics.RecordTransformLatency(float64(time.Since(start).Milliseconds()))
				if err != nil {
					metrics.RecordStageError("transform", "apply")
					fail(fmt.Errorf("transform window %q@%d: %w", win.SeriesKey, win.Start, err))

					return
				}
				metrics.RecordWindowProcessed()

				select {
				case prepared <- out:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(prepared)
	}()

	var stats Stats
	batch := make([]model.Window, 0, r.batchSize)

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}

		start := time.Now()
		blocks, err := p.Forward(ctx, batch)
		metrics.RecordInferenceLatency(float64(time.Since(start).Milliseconds()))
		metrics.RecordBatchInferred()
		if err != nil {
			metrics.RecordStageError("inference", "forward")
			fail(fmt.Errorf("forward batch of %d windows: %w", len(batch), err))

			return false
		}
		if len(blocks) != len(batch) {
			metrics.RecordStageError("inference", "shape")
			fail(fmt.Errorf("forward returned %d blocks for %d windows", len(blocks), len(batch)))

			return false
		}

		for i, win := range batch {
			b := blocks[i]
			for j := range b.Scores {
				b.Scores[j] = predict.Sigmoid(b.Scores[j])
			}
			if err := sink(win, b); err != nil {
				metrics.RecordStageError("sink", "add")
				fail(fmt.Errorf("sink window %q@%d: %w", win.SeriesKey, win.Start, err))

				return false
			}
			stats.Windows++
		}
		stats.Batches++
		batch = batch[:0]

		return true
	}

	for win := range prepared {
		metrics.UpdateQueueDepth(len(prepared))
		batch = append(batch, win)
		if len(batch) == r.batchSize {
			if !flush() {
				break
			}
		}
	}

	mu.Lock()
	aborted := firstErr != nil
	mu.Unlock()
	if !aborted {
		flush()
	}

	// The source goroutine closes its error channel last; draining it
	// here also waits it out.
	if err := <-srcErrs; err != nil {
		metrics.RecordStageError("source", "stream")
		fail(fmt.Errorf("stream windows: %w", err))
	}

	metrics.UpdateQueueDepth(0)

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		r.logger.Error(ctx, "inference run aborted", logger.Error(err))

		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	r.logger.Info(ctx, "inference run finished",
		logger.Int("windows", stats.Windows),
		logger.Int("batches", stats.Batches),
	)

	return stats, nil
}
