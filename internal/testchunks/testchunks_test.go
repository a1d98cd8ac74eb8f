package testchunks_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/somnus/internal/app"
	"github.com/okian/somnus/internal/config"
	"github.com/okian/somnus/internal/testchunks"
	"github.com/okian/somnus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerateAndVerify(t *testing.T) {
	Convey("Given a generated directory store", t, func() {
		ctx := context.Background()
		dir := t.TempDir()

		cfg := &testchunks.Config{
			Store:      filepath.Join(dir, "chunks"),
			Weights:    filepath.Join(dir, "weights.json"),
			Plan:       filepath.Join(dir, "plan.json"),
			Series:     3,
			Steps:      120,
			Window:     24,
			Overlap:    6,
			Events:     3,
			Separation: 8,
			Seed:       7,
		}
		So(testchunks.Run(ctx, cfg), ShouldBeNil)

		Convey("Then the plan respects placement constraints", func() {
			data, err := os.ReadFile(cfg.Plan)
			So(err, ShouldBeNil)

			var plan testchunks.Plan
			So(json.Unmarshal(data, &plan), ShouldBeNil)
			So(plan.Events, ShouldHaveLength, 9)
			So(plan.Threshold, ShouldEqual, 0.5)
			So(plan.Hop, ShouldEqual, 1)

			bySeries := map[string][]testchunks.PlannedEvent{}
			for _, ev := range plan.Events {
				So(ev.Step, ShouldBeGreaterThanOrEqualTo, 2)
				So(ev.Step, ShouldBeLessThan, cfg.Steps)
				So(ev.OutputStep, ShouldEqual, ev.Step-1)
				So(ev.Label, ShouldBeIn, "onset", "wakeup")
				bySeries[ev.SeriesKey] = append(bySeries[ev.SeriesKey], ev)
			}
			So(bySeries, ShouldHaveLength, 3)
			for _, evs := range bySeries {
				for i := 1; i < len(evs); i++ {
					So(evs[i].Step-evs[i-1].Step, ShouldBeGreaterThan, cfg.Separation)
				}
			}
		})

		Convey("When the pipeline runs over the store", func() {
			appCfg := config.New()
			appCfg.ChunkDir = cfg.Store
			appCfg.Weights = cfg.Weights
			appCfg.Output = filepath.Join(dir, "submission.csv")
			appCfg.Workers = 2
			appCfg.BatchSize = 8

			res, err := app.New(appCfg).Run(ctx)
			So(err, ShouldBeNil)

			Convey("Then the submission matches the plan", func() {
				So(res.Series, ShouldEqual, 3)
				So(res.Events, ShouldEqual, 9)
				So(res.Rows, ShouldEqual, 9)
				So(testchunks.Verify(ctx, cfg.Plan, appCfg.Output), ShouldBeNil)
			})

			Convey("Then dropping a row fails verification", func() {
				data, readErr := os.ReadFile(appCfg.Output)
				So(readErr, ShouldBeNil)

				lines := strings.Split(strings.TrimSpace(string(data)), "\n")
				tampered := filepath.Join(dir, "tampered.csv")
				content := strings.Join(lines[:len(lines)-1], "\n") + "\n"
				So(os.WriteFile(tampered, []byte(content), 0o644), ShouldBeNil)

				vErr := testchunks.Verify(ctx, cfg.Plan, tampered)
				So(errors.Is(vErr, testchunks.ErrMismatch), ShouldBeTrue)
				So(vErr.Error(), ShouldContainSubstring, "1 missing")
			})

			Convey("Then an unplanned row fails verification", func() {
				data, readErr := os.ReadFile(appCfg.Output)
				So(readErr, ShouldBeNil)

				padded := filepath.Join(dir, "padded.csv")
				content := append(data, []byte("99,phantom,5,onset,0.9\n")...)
				So(os.WriteFile(padded, content, 0o644), ShouldBeNil)

				vErr := testchunks.Verify(ctx, cfg.Plan, padded)
				So(errors.Is(vErr, testchunks.ErrMismatch), ShouldBeTrue)
				So(vErr.Error(), ShouldContainSubstring, "1 extra")
			})
		})
	})
}

func TestGenerateSQLiteStore(t *testing.T) {
	Convey("Given a generated SQLite store", t, func() {
		ctx := context.Background()
		dir := t.TempDir()

		cfg := &testchunks.Config{
			Store:      filepath.Join(dir, "chunks.db"),
			Weights:    filepath.Join(dir, "weights.json"),
			Plan:       filepath.Join(dir, "plan.json"),
			Series:     2,
			Steps:      60,
			Window:     20,
			Overlap:    5,
			Events:     2,
			Separation: 8,
			Seed:       11,
		}
		So(testchunks.Run(ctx, cfg), ShouldBeNil)

		Convey("When the pipeline runs over the store", func() {
			appCfg := config.New()
			appCfg.ChunkDir = cfg.Store
			appCfg.Weights = cfg.Weights
			appCfg.Output = filepath.Join(dir, "submission.csv")

			res, err := app.New(appCfg).Run(ctx)

			Convey("Then the submission matches the plan", func() {
				So(err, ShouldBeNil)
				So(res.Series, ShouldEqual, 2)
				So(res.Rows, ShouldEqual, 4)
				So(testchunks.Verify(ctx, cfg.Plan, appCfg.Output), ShouldBeNil)
			})
		})
	})
}

func TestGeneratorRejects(t *testing.T) {
	Convey("Given generator configs that cannot work", t, func() {
		ctx := context.Background()
		dir := t.TempDir()

		base := func() *testchunks.Config {
			return &testchunks.Config{
				Store:      filepath.Join(dir, "chunks"),
				Weights:    filepath.Join(dir, "weights.json"),
				Plan:       filepath.Join(dir, "plan.json"),
				Series:     1,
				Steps:      20,
				Window:     10,
				Overlap:    2,
				Events:     1,
				Separation: 8,
				Seed:       1,
			}
		}

		Convey("When events are too dense for the series", func() {
			cfg := base()
			cfg.Events = 5

			err := testchunks.Run(ctx, cfg)
			So(errors.Is(err, testchunks.ErrBadConfig), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "cannot hold")
		})

		Convey("When the window exceeds the series", func() {
			cfg := base()
			cfg.Window = 40

			So(errors.Is(testchunks.Run(ctx, cfg), testchunks.ErrBadConfig), ShouldBeTrue)
		})

		Convey("When the overlap swallows the window", func() {
			cfg := base()
			cfg.Overlap = cfg.Window

			So(errors.Is(testchunks.Run(ctx, cfg), testchunks.ErrBadConfig), ShouldBeTrue)
		})

		Convey("When the store path is empty", func() {
			cfg := base()
			cfg.Store = ""

			So(errors.Is(testchunks.Run(ctx, cfg), testchunks.ErrBadConfig), ShouldBeTrue)
		})

		Convey("When verifying without a plan file", func() {
			err := testchunks.Verify(ctx, filepath.Join(dir, "absent.json"), "whatever.csv")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "read plan")
		})
	})
}
