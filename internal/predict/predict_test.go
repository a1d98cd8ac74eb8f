package predict_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	model "github.com/okian/somnus/internal/domain/model"
	predict "github.com/okian/somnus/internal/predict"
	. "github.com/smartystreets/goconvey/convey"
)

func validWeights() *predict.Weights {
	return &predict.Weights{
		Version:    1,
		FeatureDim: 2,
		Channels:   2,
		Mean:       []float64{1, 2},
		Std:        []float64{2, 4},
		Weight:     [][]float64{{1, 0}, {0, 1}},
		Bias:       []float64{0, 1},
	}
}

func TestSigmoid(t *testing.T) {
	Convey("Given the sigmoid helper", t, func() {
		Convey("When applied to zero", func() {
			So(predict.Sigmoid(0), ShouldAlmostEqual, 0.5)
		})

		Convey("When applied to extreme logits", func() {
			So(predict.Sigmoid(1000), ShouldAlmostEqual, 1.0)
			So(predict.Sigmoid(-1000), ShouldAlmostEqual, 0.0)
		})

		Convey("When checking symmetry", func() {
			for _, x := range []float64{0.1, 1, 3, 7} {
				So(predict.Sigmoid(-x), ShouldAlmostEqual, 1-predict.Sigmoid(x))
			}
		})

		Convey("When checking the output range", func() {
			for _, x := range []float64{-50, -1, 0, 1, 50} {
				v := predict.Sigmoid(x)
				So(v, ShouldBeGreaterThan, 0.0)
				So(v, ShouldBeLessThan, 1.0)
			}
		})
	})
}

func TestLoadWeights(t *testing.T) {
	Convey("Given weights artifacts on disk", t, func() {
		dir := t.TempDir()

		Convey("When the artifact does not exist", func() {
			_, err := predict.LoadWeights(filepath.Join(dir, "nope.json"))

			Convey("Then it should fail with the missing sentinel", func() {
				So(errors.Is(err, predict.ErrMissingWeights), ShouldBeTrue)
			})
		})

		Convey("When the artifact is not JSON", func() {
			path := filepath.Join(dir, "garbage.json")
			So(os.WriteFile(path, []byte("not json at all"), 0o644), ShouldBeNil)

			_, err := predict.LoadWeights(path)

			Convey("Then it should fail with the corrupt sentinel", func() {
				So(errors.Is(err, predict.ErrCorruptWeights), ShouldBeTrue)
			})
		})

		Convey("When a valid artifact is saved and reloaded", func() {
			path := filepath.Join(dir, "weights.json")
			So(predict.SaveWeights(path, validWeights()), ShouldBeNil)

			w, err := predict.LoadWeights(path)

			Convey("Then the round trip should preserve every field", func() {
				So(err, ShouldBeNil)
				So(w, ShouldResemble, validWeights())
			})
		})
	})
}

func TestWeightsValidate(t *testing.T) {
	Convey("Given weights validation", t, func() {
		Convey("When the artifact is well formed", func() {
			So(validWeights().Validate(), ShouldBeNil)
		})

		Convey("When the version is unsupported", func() {
			w := validWeights()
			w.Version = 2

			So(errors.Is(w.Validate(), predict.ErrCorruptWeights), ShouldBeTrue)
		})

		Convey("When mean length disagrees with the feature dim", func() {
			w := validWeights()
			w.Mean = []float64{1}

			So(errors.Is(w.Validate(), predict.ErrCorruptWeights), ShouldBeTrue)
		})

		Convey("When a weight row is ragged", func() {
			w := validWeights()
			w.Weight = [][]float64{{1, 0}, {0}}

			So(errors.Is(w.Validate(), predict.ErrCorruptWeights), ShouldBeTrue)
		})

		Convey("When a std entry is zero", func() {
			w := validWeights()
			w.Std = []float64{2, 0}

			So(errors.Is(w.Validate(), predict.ErrCorruptWeights), ShouldBeTrue)
		})

		Convey("When bias length disagrees with the channel count", func() {
			w := validWeights()
			w.Bias = []float64{0}

			So(errors.Is(w.Validate(), predict.ErrCorruptWeights), ShouldBeTrue)
		})
	})
}

func TestStandardizeTransform(t *testing.T) {
	Convey("Given a standardize transform with mean [1 2] and std [2 4]", t, func() {
		tf := predict.NewStandardizeTransform(validWeights())
		ctx := context.Background()

		Convey("When applying to a two-step window", func() {
			in := model.Window{
				SeriesKey:  "s-01",
				Start:      8,
				FeatureDim: 2,
				Features:   []float64{3, 6, 1, 2},
			}
			out, err := tf.Apply(ctx, in)

			Convey("Then features should standardize per position", func() {
				So(err, ShouldBeNil)
				So(out.Features, ShouldResemble, []float64{1, 1, 0, 0})
			})

			Convey("Then the key and start should carry over", func() {
				So(out.SeriesKey, ShouldEqual, "s-01")
				So(out.Start, ShouldEqual, 8)
				So(out.FeatureDim, ShouldEqual, 2)
			})

			Convey("Then the input window should stay untouched", func() {
				So(in.Features, ShouldResemble, []float64{3, 6, 1, 2})
			})
		})

		Convey("When the window feature dim disagrees", func() {
			in := model.Window{SeriesKey: "s-01", FeatureDim: 3, Features: []float64{1, 2, 3}}
			_, err := tf.Apply(ctx, in)

			Convey("Then it should fail naming the series", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "s-01")
			})
		})

		Convey("When the context is cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := tf.Apply(cancelled, model.Window{SeriesKey: "s-01", FeatureDim: 2, Features: []float64{1, 2}})

			Convey("Then the context error should surface", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestLinearPredictor(t *testing.T) {
	Convey("Given a linear predictor with identity weights and bias [0 1]", t, func() {
		p := predict.NewLinearPredictor(validWeights())
		ctx := context.Background()

		Convey("Then it should report two channels", func() {
			So(p.Channels(), ShouldEqual, 2)
		})

		Convey("When forwarding a batch of two windows", func() {
			batch := []model.Window{
				{SeriesKey: "s-01", Start: 0, FeatureDim: 2, Features: []float64{2, 3}},
				{SeriesKey: "s-02", Start: 4, FeatureDim: 2, Features: []float64{0, 0, 1, 1}},
			}
			blocks, err := p.Forward(ctx, batch)

			Convey("Then each window should get its own block in order", func() {
				So(err, ShouldBeNil)
				So(len(blocks), ShouldEqual, 2)
				So(blocks[0].Steps(), ShouldEqual, 1)
				So(blocks[1].Steps(), ShouldEqual, 2)
			})

			Convey("Then logits should be the affine map of the features", func() {
				// Channel 0 picks feature 0, channel 1 picks feature 1 plus bias 1.
				So(blocks[0].At(0, 0), ShouldAlmostEqual, 2)
				So(blocks[0].At(0, 1), ShouldAlmostEqual, 4)
				So(blocks[1].At(0, 0), ShouldAlmostEqual, 0)
				So(blocks[1].At(0, 1), ShouldAlmostEqual, 1)
				So(blocks[1].At(1, 0), ShouldAlmostEqual, 1)
				So(blocks[1].At(1, 1), ShouldAlmostEqual, 2)
			})
		})

		Convey("When a window has the wrong feature dim", func() {
			_, err := p.Forward(ctx, []model.Window{{SeriesKey: "s-03", FeatureDim: 1, Features: []float64{1}}})

			Convey("Then the forward should fail naming the series", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "s-03")
			})
		})

		Convey("When the context is cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := p.Forward(cancelled, nil)

			Convey("Then the context error should surface", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}
