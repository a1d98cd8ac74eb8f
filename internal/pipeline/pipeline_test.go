package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	model "github.com/okian/somnus/internal/domain/model"
	pipeline "github.com/okian/somnus/internal/pipeline"
	"github.com/okian/somnus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeSource streams a fixed window list, optionally failing after a
// few sends.
type fakeSource struct {
	wins      []model.Window
	failAfter int // sends before the stream breaks; <0 disables
}

func (s *fakeSource) Count() int { return len(s.wins) }

func (s *fakeSource) Close() error { return nil }

func (s *fakeSource) Stream(ctx context.Context) (<-chan model.Window, <-chan error) {
	windows := make(chan model.Window)
	errs := make(chan error, 1)

	go func() {
		defer close(windows)
		defer close(errs)

		for i, w := range s.wins {
			if s.failAfter >= 0 && i == s.failAfter {
				errs <- errors.New("chunk store went away")

				return
			}
			select {
			case windows <- w:
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}
	}()

	return windows, errs
}

// stubTransform passes windows through, failing on one configured key.
type stubTransform struct {
	failKey string
}

func (t stubTransform) Apply(_ context.Context, w model.Window) (model.Window, error) {
	if t.failKey != "" && w.SeriesKey == t.failKey {
		return model.Window{}, errors.New("unusable features")
	}

	return w, nil
}

// stubPredictor emits zero logits, one channel per step.
type stubPredictor struct {
	fail      bool
	misshapen bool
}

func (p stubPredictor) Channels() int { return 1 }

func (p stubPredictor) Forward(_ context.Context, batch []model.Window) ([]model.Block, error) {
	if p.fail {
		return nil, errors.New("device lost")
	}
	if p.misshapen {
		return nil, nil
	}

	blocks := make([]model.Block, len(batch))
	for i, w := range batch {
		blocks[i] = model.NewBlock(w.Steps(), 1)
	}

	return blocks, nil
}

// capture records every sink invocation.
type capture struct {
	mu     sync.Mutex
	wins   []model.Window
	blocks []model.Block
	fail   bool
}

func (c *capture) sink(w model.Window, b model.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return errors.New("aggregator refused the block")
	}
	c.wins = append(c.wins, w)
	c.blocks = append(c.blocks, b)

	return nil
}

func makeWindows(n, steps int) []model.Window {
	wins := make([]model.Window, n)
	for i := range wins {
		features := make([]float64, steps)
		wins[i] = model.Window{
			SeriesKey:  fmt.Sprintf("s-%02d", i),
			Start:      i * steps,
			FeatureDim: 1,
			Features:   features,
		}
	}

	return wins
}

func TestRunnerHappyPath(t *testing.T) {
	Convey("Given seven windows and a batch size of three", t, func() {
		src := &fakeSource{wins: makeWindows(7, 4), failAfter: -1}
		sink := &capture{}
		r := pipeline.NewRunner(
			pipeline.WithWorkers(3),
			pipeline.WithBatchSize(3),
			pipeline.WithDevice("cpu"),
		)

		Convey("When running", func() {
			stats, err := r.Run(context.Background(), src, stubTransform{}, stubPredictor{}, sink.sink)

			Convey("Then every window should reach the sink exactly once", func() {
				So(err, ShouldBeNil)
				So(stats.Windows, ShouldEqual, 7)
				So(len(sink.wins), ShouldEqual, 7)

				seen := make(map[string]bool)
				for _, w := range sink.wins {
					seen[w.SeriesKey] = true
				}
				So(len(seen), ShouldEqual, 7)
			})

			Convey("Then batches should split as 3+3+1", func() {
				So(stats.Batches, ShouldEqual, 3)
			})

			Convey("Then logits should arrive as probabilities", func() {
				// Zero logits map through the sigmoid to exactly 0.5.
				for _, b := range sink.blocks {
					for step := 0; step < b.Steps(); step++ {
						So(b.At(step, 0), ShouldAlmostEqual, 0.5)
					}
				}
			})
		})
	})
}

func TestRunnerTransformFailure(t *testing.T) {
	Convey("Given a transform that rejects one window", t, func() {
		src := &fakeSource{wins: makeWindows(6, 4), failAfter: -1}
		sink := &capture{}
		r := pipeline.NewRunner(pipeline.WithWorkers(2), pipeline.WithBatchSize(2))

		Convey("When running", func() {
			_, err := r.Run(context.Background(), src, stubTransform{failKey: "s-03"}, stubPredictor{}, sink.sink)

			Convey("Then the run should abort naming the window", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "s-03")
				So(err.Error(), ShouldContainSubstring, "unusable features")
			})

			Convey("Then the rejected window should never reach the sink", func() {
				for _, w := range sink.wins {
					So(w.SeriesKey, ShouldNotEqual, "s-03")
				}
			})
		})
	})
}

func TestRunnerForwardFailure(t *testing.T) {
	Convey("Given a predictor that fails", t, func() {
		src := &fakeSource{wins: makeWindows(4, 4), failAfter: -1}
		sink := &capture{}
		r := pipeline.NewRunner(pipeline.WithWorkers(2), pipeline.WithBatchSize(2))

		Convey("When running", func() {
			_, err := r.Run(context.Background(), src, stubTransform{}, stubPredictor{fail: true}, sink.sink)

			Convey("Then the run should abort with the forward error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "device lost")
				So(len(sink.wins), ShouldEqual, 0)
			})
		})
	})
}

func TestRunnerMisshapenForward(t *testing.T) {
	Convey("Given a predictor that returns the wrong block count", t, func() {
		src := &fakeSource{wins: makeWindows(4, 4), failAfter: -1}
		sink := &capture{}
		r := pipeline.NewRunner(pipeline.WithWorkers(2), pipeline.WithBatchSize(4))

		Convey("When running", func() {
			_, err := r.Run(context.Background(), src, stubTransform{}, stubPredictor{misshapen: true}, sink.sink)

			Convey("Then the run should abort on the shape check", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "blocks")
			})
		})
	})
}

func TestRunnerSinkFailure(t *testing.T) {
	Convey("Given a sink that refuses blocks", t, func() {
		src := &fakeSource{wins: makeWindows(4, 4), failAfter: -1}
		sink := &capture{fail: true}
		r := pipeline.NewRunner(pipeline.WithWorkers(2), pipeline.WithBatchSize(2))

		Convey("When running", func() {
			_, err := r.Run(context.Background(), src, stubTransform{}, stubPredictor{}, sink.sink)

			Convey("Then the run should abort with the sink error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "aggregator refused")
			})
		})
	})
}

func TestRunnerSourceFailure(t *testing.T) {
	Convey("Given a source that breaks mid-stream", t, func() {
		src := &fakeSource{wins: makeWindows(6, 4), failAfter: 2}
		sink := &capture{}
		r := pipeline.NewRunner(pipeline.WithWorkers(2), pipeline.WithBatchSize(2))

		Convey("When running", func() {
			_, err := r.Run(context.Background(), src, stubTransform{}, stubPredictor{}, sink.sink)

			Convey("Then the run should surface the stream error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "chunk store went away")
			})
		})
	})
}

func TestRunnerCancellation(t *testing.T) {
	Convey("Given a cancelled context", t, func() {
		src := &fakeSource{wins: makeWindows(8, 4), failAfter: -1}
		sink := &capture{}
		r := pipeline.NewRunner(pipeline.WithWorkers(2), pipeline.WithBatchSize(2))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("When running", func() {
			_, err := r.Run(ctx, src, stubTransform{}, stubPredictor{}, sink.sink)

			Convey("Then the run should abort with the context error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}
