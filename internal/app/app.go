// Package app wires one inference run end to end: it opens the chunk
// store, drives windowed inference, aggregates probability blocks,
// decodes events and writes the submission table.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/somnus/internal/config"
	"github.com/okian/somnus/internal/dataset"
	"github.com/okian/somnus/internal/domain/aggregate"
	"github.com/okian/somnus/internal/domain/decode"
	"github.com/okian/somnus/internal/domain/model"
	"github.com/okian/somnus/internal/pipeline"
	"github.com/okian/somnus/internal/predict"
	"github.com/okian/somnus/internal/submission"
	"github.com/okian/somnus/pkg/logger"
	"github.com/okian/somnus/pkg/metrics"
)

// Service runs one inference pass over a chunk store. Components left
// unset are built from the configuration when Run starts, so tests can
// inject any subset of them.
type Service struct {
	cfg *config.Config

	// Injected components; nil means build from cfg.
	source    dataset.Source
	transform predict.FeatureTransform
	predictor predict.Predictor
	writer    submission.Writer

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSource overrides the chunk source. The caller keeps ownership
// and closes it.
func WithSource(src dataset.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithTransform overrides the feature transform.
func WithTransform(tf predict.FeatureTransform) Option {
	return func(s *Service) {
		if tf != nil {
			s.transform = tf
		}
	}
}

// WithPredictor overrides the predictor.
func WithPredictor(p predict.Predictor) Option {
	return func(s *Service) {
		if p != nil {
			s.predictor = p
		}
	}
}

// WithWriter overrides the submission writer.
func WithWriter(w submission.Writer) Option {
	return func(s *Service) {
		if w != nil {
			s.writer = w
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service around cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg: cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Result summarizes one finished run.
type Result struct {
	RunID   string
	Windows int // windows scored and aggregated
	Batches int // forward passes
	Series  int // series sealed
	Events  int // events decoded
	Rows    int // submission rows written
	Elapsed time.Duration
}

// Run executes the full pass: stream, transform, infer, aggregate,
// seal, decode, assemble, write. Bad policy values, an unknown output
// format and a missing or corrupt weights artifact all surface here
// before the first window is read.
func (s *Service) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	runID := uuid.NewString()

	if s.logger == nil {
		s.logger = logger.Get().Named("app")
	}

	policy := s.cfg.Policy()
	if err := policy.Validate(); err != nil {
		return Result{}, fmt.Errorf("decode policy: %w", err)
	}

	writer := s.writer
	if writer == nil {
		w, err := submission.NewWriter(s.cfg.Format, s.cfg.Output)
		if err != nil {
			return Result{}, fmt.Errorf("open submission writer: %w", err)
		}
		writer = w
	}

	transform, predictor := s.transform, s.predictor
	if transform == nil || predictor == nil {
		weights, err := predict.LoadWeights(s.cfg.Weights)
		if err != nil {
			return Result{}, fmt.Errorf("load weights %s: %w", s.cfg.Weights, err)
		}
		if transform == nil {
			transform = predict.NewStandardizeTransform(weights)
		}
		if predictor == nil {
			predictor = predict.NewLinearPredictor(weights)
		}
	}

	// The policy can only be checked against the model once the
	// predictor exists, but still before anything streams.
	for _, cl := range policy.Channels {
		if cl.Channel >= predictor.Channels() {
			return Result{}, fmt.Errorf("%w: channel %d outside model range %d",
				decode.ErrInvalidPolicy, cl.Channel, predictor.Channels())
		}
	}

	source := s.source
	if source == nil {
		src, err := dataset.Open(s.cfg.ChunkDir)
		if err != nil {
			return Result{}, fmt.Errorf("open chunk store %s: %w", s.cfg.ChunkDir, err)
		}
		defer func() { _ = src.Close() }()
		source = src
	}

	s.logger.Info(ctx, "starting run",
		logger.String("run_id", runID),
		logger.String("chunks", s.cfg.ChunkDir),
		logger.String("weights", s.cfg.Weights),
		logger.String("output", s.cfg.Output),
		logger.String("format", s.cfg.Format),
	)

	agg := aggregate.New(predictor.Channels())
	sink := func(w model.Window, b model.Block) error {
		if err := agg.Add(w, b); err != nil {
			return err
		}
		metrics.UpdateSeriesOpen(agg.Count())

		return nil
	}

	runner := pipeline.NewRunner(
		pipeline.WithWorkers(s.cfg.Workers),
		pipeline.WithBatchSize(s.cfg.BatchSize),
		pipeline.WithDevice(s.cfg.Device),
	)
	stats, err := runner.Run(ctx, source, transform, predictor, sink)
	if err != nil {
		return Result{}, fmt.Errorf("run inference: %w", err)
	}

	if err := agg.Seal(); err != nil {
		metrics.RecordStageError("aggregate", "seal")

		return Result{}, fmt.Errorf("seal series: %w", err)
	}
	metrics.UpdateSeriesOpen(0)
	metrics.UpdateSeriesSealed(agg.Count())
	metrics.RecordOverlapSteps(agg.Overlap())

	decodeStart := time.Now()
	events, err := decode.All(ctx, agg, policy, s.cfg.Workers)
	if err != nil {
		metrics.RecordStageError("decode", "events")

		return Result{}, fmt.Errorf("decode events: %w", err)
	}
	metrics.RecordDecodeLatency(float64(time.Since(decodeStart).Milliseconds()))

	asm := submission.NewAssembler(s.cfg.HopLength)
	for _, ev := range events {
		metrics.RecordEventDecoded(ev.Label)
		asm.Add(ev)
	}

	rows := asm.Rows()
	if err := writer.Write(rows); err != nil {
		metrics.RecordStageError("submission", "write")

		return Result{}, fmt.Errorf("write submission: %w", err)
	}

	res := Result{
		RunID:   runID,
		Windows: stats.Windows,
		Batches: stats.Batches,
		Series:  agg.Count(),
		Events:  len(events),
		Rows:    len(rows),
		Elapsed: time.Since(started),
	}

	s.logger.Info(ctx, "run complete",
		logger.String("run_id", runID),
		logger.Int("windows", res.Windows),
		logger.Int("batches", res.Batches),
		logger.Int("series", res.Series),
		logger.Int("events", res.Events),
		logger.Int("rows", res.Rows),
		logger.Duration("elapsed", res.Elapsed),
	)

	return res, nil
}
