package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/somnus/internal/testchunks"
	"github.com/okian/somnus/pkg/logger"
)

// Default fixture geometry constants.
const (
	defaultSeries     = 4
	defaultSteps      = 240
	defaultWindow     = 48
	defaultOverlap    = 12
	defaultEvents     = 3
	defaultSeparation = 8
	defaultSeed       = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		store      = flag.String("store", "chunks", "Chunk store to write (directory, or a .db path for SQLite)")
		weights    = flag.String("weights", "weights.json", "Model weights file to write")
		plan       = flag.String("plan", "plan.json", "Plan file recording every planted event")
		series     = flag.Int("series", defaultSeries, "Number of series to generate")
		steps      = flag.Int("steps", defaultSteps, "Steps per series")
		window     = flag.Int("window", defaultWindow, "Steps per window")
		overlap    = flag.Int("overlap", defaultOverlap, "Overlapping steps between consecutive windows")
		events     = flag.Int("events", defaultEvents, "Events planted per series")
		separation = flag.Int("separation", defaultSeparation, "Minimum steps between planted events")
		seed       = flag.Int64("seed", defaultSeed, "Random seed for reproducible stores")
		verify     = flag.String("verify", "", "Verify a submission file against the plan instead of generating")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testchunks.ShowHelp()
		return 0
	}

	// Setup logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	// Cancel on SIGINT/SIGTERM so a partial store is not left silently.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *verify != "" {
		if err := testchunks.Verify(ctx, *plan, *verify); err != nil {
			os.Stderr.WriteString("Verification failed: " + err.Error() + "\n")
			return 1
		}
		return 0
	}

	cfg := &testchunks.Config{
		Store:      *store,
		Weights:    *weights,
		Plan:       *plan,
		Series:     *series,
		Steps:      *steps,
		Window:     *window,
		Overlap:    *overlap,
		Events:     *events,
		Separation: *separation,
		Seed:       *seed,
		Verbose:    *verbose,
	}

	if err := testchunks.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Generation failed: " + err.Error() + "\n")
		return 1
	}

	return 0
}
