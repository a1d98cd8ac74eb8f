package testchunks

import "os"

// ShowHelp prints usage information for the chunk generator tool.
func ShowHelp() {
	os.Stdout.WriteString(`Somnus Chunk Generator
======================

Generates a synthetic chunk store, a matching weights artifact and a
plan file listing the planted events. Running the pipeline over the
generated store with default settings must reproduce the plan exactly,
which -verify checks.

Usage:
  go run cmd/gen-chunks/main.go [options]

Options:
  -store string
        Chunk store destination: a directory, or a .db path for SQLite
        (default "chunks")
  -weights string
        Weights artifact destination (default "weights.json")
  -plan string
        Plan file destination (default "plan.json")
  -series int
        Number of series to generate (default 4)
  -steps int
        Steps per series (default 240)
  -window int
        Steps per window (default 48)
  -overlap int
        Overlapping steps between consecutive windows (default 12)
  -events int
        Planted events per series (default 3)
  -separation int
        Minimum step distance between planted events (default 8)
  -seed int
        Random seed (default 1)
  -verify string
        Verify this submission CSV against the plan instead of generating
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Generate a default store
  go run cmd/gen-chunks/main.go

  # Generate a SQLite store with denser coverage
  go run cmd/gen-chunks/main.go -store chunks.db -overlap 24

  # Check a submission against the plan
  go run cmd/gen-chunks/main.go -plan plan.json -verify submission.csv
`)
}
