package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/somnus/internal/app"
	"github.com/okian/somnus/internal/config"
	"github.com/okian/somnus/internal/testchunks"
	"github.com/okian/somnus/pkg/logger"

	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// clearSomnusEnv removes every configuration variable the entrypoint reads
// so tests cannot leak settings into each other.
func clearSomnusEnv() {
	envVars := []string{
		"SOMNUS_CONFIG",
		"SOMNUS_LOG_LEVEL",
		"SOMNUS_METRICS_ADDR",
		"SOMNUS_CHUNK_DIR",
		"SOMNUS_WEIGHTS",
		"SOMNUS_OUTPUT",
		"SOMNUS_FORMAT",
		"SOMNUS_DEVICE",
		"SOMNUS_BATCH_SIZE",
		"SOMNUS_WORKERS",
		"SOMNUS_SCORE_THRESHOLD",
		"SOMNUS_MIN_SEPARATION",
		"SOMNUS_HOP_LENGTH",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestMainComponents(t *testing.T) {
	convey.Convey("Given the entrypoint components", t, func() {
		clearSomnusEnv()
		defer clearSomnusEnv()

		convey.Convey("When loading configuration from the environment", func() {
			os.Setenv("SOMNUS_CHUNK_DIR", "/tmp/somnus-chunks")
			os.Setenv("SOMNUS_WORKERS", "3")

			cfg, err := config.Load(context.Background())

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.ChunkDir, convey.ShouldEqual, "/tmp/somnus-chunks")
			convey.So(cfg.Workers, convey.ShouldEqual, 3)
		})

		convey.Convey("When creating the application service", func() {
			svc := app.New(config.New())
			convey.So(svc, convey.ShouldNotBeNil)
		})

		convey.Convey("When starting and stopping the metrics server", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			convey.So(func() {
				srv := startMetricsServer(ctx, "127.0.0.1:0")
				stopMetricsServer(srv)
			}, convey.ShouldNotPanic)
		})
	})
}

func TestMainErrorHandling(t *testing.T) {
	convey.Convey("Given broken configuration input", t, func() {
		clearSomnusEnv()
		defer clearSomnusEnv()

		convey.Convey("When the environment carries an out-of-range threshold", func() {
			os.Setenv("SOMNUS_SCORE_THRESHOLD", "1.5")

			cfg, err := config.Load(context.Background())

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestRunEndToEnd(t *testing.T) {
	convey.Convey("Given a generated chunk store", t, func() {
		clearSomnusEnv()
		defer clearSomnusEnv()

		dir := t.TempDir()
		gen := &testchunks.Config{
			Store:      filepath.Join(dir, "chunks"),
			Weights:    filepath.Join(dir, "weights.json"),
			Plan:       filepath.Join(dir, "plan.json"),
			Series:     2,
			Steps:      80,
			Window:     16,
			Overlap:    4,
			Events:     2,
			Separation: 8,
			Seed:       5,
		}
		convey.So(testchunks.Run(context.Background(), gen), convey.ShouldBeNil)

		output := filepath.Join(dir, "submission.csv")
		os.Setenv("SOMNUS_CHUNK_DIR", gen.Store)
		os.Setenv("SOMNUS_WEIGHTS", gen.Weights)
		os.Setenv("SOMNUS_OUTPUT", output)

		convey.Convey("When the entrypoint runs", func() {
			code := run()

			convey.So(code, convey.ShouldEqual, 0)

			data, err := os.ReadFile(output)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(data), convey.ShouldContainSubstring, "row_id,series_id,step,event,score")

			convey.So(testchunks.Verify(context.Background(), gen.Plan, output), convey.ShouldBeNil)
		})

		convey.Convey("When the weights file is missing", func() {
			os.Setenv("SOMNUS_WEIGHTS", filepath.Join(dir, "absent.json"))

			convey.So(run(), convey.ShouldEqual, 1)
		})
	})
}
