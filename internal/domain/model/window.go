// Package model contains domain models passed between pipeline stages.
package model

// Window is one fixed-length slice of a series, carried from the dataset
// through feature preparation into inference. Features is flat row-major
// (step-major): the vector for local step i occupies
// Features[i*FeatureDim : (i+1)*FeatureDim]. Callers treat a Window as
// read-only once it leaves the stage that created it.
type Window struct {
	SeriesKey  string    // series identifier the window was cut from
	Start      int       // absolute step index of the window's local step 0
	FeatureDim int       // features per step
	Features   []float64 // flat row-major, Steps() × FeatureDim
}

// Steps returns the number of timesteps the window covers.
func (w Window) Steps() int {
	if w.FeatureDim <= 0 {
		return 0
	}

	return len(w.Features) / w.FeatureDim
}

// Row returns the feature vector for local step i. The returned slice
// aliases the window's backing array.
func (w Window) Row(i int) []float64 {
	return w.Features[i*w.FeatureDim : (i+1)*w.FeatureDim]
}

// Block holds per-step, per-channel scores produced for one window.
// Scores is flat row-major: the value for (step, ch) lives at
// Scores[step*Channels+ch]. Blocks are immutable once handed to the
// aggregator.
type Block struct {
	Channels int       // model output channels per step
	Scores   []float64 // flat row-major, Steps() × Channels
}

// NewBlock allocates a zeroed block for the given shape.
func NewBlock(steps, channels int) Block {
	return Block{
		Channels: channels,
		Scores:   make([]float64, steps*channels),
	}
}

// Steps returns the number of timesteps the block covers.
func (b Block) Steps() int {
	if b.Channels <= 0 {
		return 0
	}

	return len(b.Scores) / b.Channels
}

// At returns the score for (step, ch).
func (b Block) At(step, ch int) float64 {
	return b.Scores[step*b.Channels+ch]
}

// Set stores the score for (step, ch). Only the stage that builds the
// block may call it.
func (b Block) Set(step, ch int, v float64) {
	b.Scores[step*b.Channels+ch] = v
}
