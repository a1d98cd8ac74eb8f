package testchunks

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/somnus/internal/dataset"
	"github.com/okian/somnus/internal/domain/model"
	"github.com/okian/somnus/internal/predict"
	"github.com/okian/somnus/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	planPermission      = 0o644
)

// Run generates the chunk store, the weights artifact and the plan
// file. A submission produced over the store with the default pipeline
// settings decodes exactly the planted events.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "generating chunk store",
		logger.String("store", cfg.Store),
		logger.String("weights", cfg.Weights),
		logger.String("plan", cfg.Plan),
		logger.Int("series", cfg.Series),
		logger.Int("steps", cfg.Steps),
		logger.Int("window", cfg.Window),
		logger.Int("overlap", cfg.Overlap),
		logger.Int("events", cfg.Events),
		logger.Int64("seed", cfg.Seed))

	if err := cfg.validate(); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible fixture data

	wins, plan, err := generate(ctx, cfg, rng)
	if err != nil {
		return fmt.Errorf("generate series: %w", err)
	}

	if err := writeStore(cfg.Store, wins); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := predict.SaveWeights(cfg.Weights, modelWeights()); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	if err := writePlan(cfg.Plan, plan); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}

	stats.SeriesGenerated = cfg.Series
	stats.WindowsWritten = len(wins)
	stats.EventsPlanted = len(plan.Events)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	logger.Get().Info(ctx, "chunk store ready",
		logger.Int("series", stats.SeriesGenerated),
		logger.Int("windows", stats.WindowsWritten),
		logger.Int("events", stats.EventsPlanted),
		logger.String("duration", stats.Duration.String()))

	return nil
}

// writeStore materializes the windows as a SQLite store when the path
// ends in .db, as a directory of chunk files otherwise.
func writeStore(store string, wins []model.Window) error {
	if strings.HasSuffix(store, ".db") {
		w, err := dataset.NewStoreWriter(store)
		if err != nil {
			return err
		}
		for _, win := range wins {
			if err := w.Put(win); err != nil {
				_ = w.Close()

				return err
			}
		}

		return w.Close()
	}

	if err := os.MkdirAll(store, directoryPermission); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	for i, win := range wins {
		name := fmt.Sprintf("chunk-%04d-%06d.chk", i, win.Start)
		if err := dataset.WriteChunkFile(filepath.Join(store, name), win); err != nil {
			return err
		}
	}

	return nil
}

func writePlan(path string, plan *Plan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append(data, '\n'), planPermission)
}

func readPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}

	return &plan, nil
}
