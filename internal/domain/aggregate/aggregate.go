// Package aggregate merges per-window score blocks into whole-series
// score columns.
//
// Windows covering the same series may overlap; overlapping steps are
// combined with the pointwise maximum, uniformly for the whole run, so
// the result does not depend on window arrival order. Once every window
// has been added the aggregator is sealed: sealing freezes all series
// and validates that each one is covered without gaps from step 0 to
// its last covered step.
package aggregate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/okian/somnus/internal/domain/model"
)

// Aggregator collects score blocks per series key. Add is the ONLY
// write path; reads are rejected until Seal succeeds.
type Aggregator struct {
	mu       sync.RWMutex
	channels int
	series   map[string]*Series
	sealed   bool
	overlap  int // total steps written by more than one window
}

// Series holds the aggregated per-channel score columns of one series.
// It is mutable only inside this package; after Seal callers read it
// through accessors.
type Series struct {
	key     string
	columns [][]float64 // one column per channel, index = absolute step
	covered []bool      // per-step coverage bitmap
}

// New creates an aggregator for blocks with the given channel count.
// channels must be at least 1.
func New(channels int) *Aggregator {
	return &Aggregator{
		channels: channels,
		series:   make(map[string]*Series),
	}
}

// Add writes one block at the window's position. Overlapping steps keep
// the pointwise maximum of the existing and incoming scores. The block
// is the authority on how many steps were scored; the window supplies
// only the series key and the absolute start step.
func (a *Aggregator) Add(w model.Window, b model.Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return fmt.Errorf("add window for series %q: %w", w.SeriesKey, ErrSealed)
	}
	if b.Channels != a.channels {
		return fmt.Errorf("series %q: block has %d channels, want %d: %w",
			w.SeriesKey, b.Channels, a.channels, ErrShapeMismatch)
	}
	if w.Start < 0 {
		return fmt.Errorf("series %q: window starts at negative step %d: %w",
			w.SeriesKey, w.Start, ErrShapeMismatch)
	}

	s, ok := a.series[w.SeriesKey]
	if !ok {
		s = &Series{
			key:     w.SeriesKey,
			columns: make([][]float64, a.channels),
		}
		a.series[w.SeriesKey] = s
	}

	steps := b.Steps()
	s.grow(w.Start + steps)

	for i := 0; i < steps; i++ {
		abs := w.Start + i
		if s.covered[abs] {
			// Overlap: keep the larger score per channel.
			for ch := 0; ch < a.channels; ch++ {
				if v := b.At(i, ch); v > s.columns[ch][abs] {
					s.columns[ch][abs] = v
				}
			}
			a.overlap++
			continue
		}
		s.covered[abs] = true
		for ch := 0; ch < a.channels; ch++ {
			s.columns[ch][abs] = b.At(i, ch)
		}
	}

	return nil
}

// Seal freezes the aggregator and validates coverage: every series must
// be covered at every step from 0 to its last covered step. The first
// gap found (in sorted key order) fails the seal and the aggregator
// stays writable, though a run that hits this aborts anyway.
func (a *Aggregator) Seal() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return ErrSealed
	}

	for _, key := range a.sortedKeys() {
		s := a.series[key]
		if start, end, ok := s.firstGap(); ok {
			return fmt.Errorf("series %q: steps [%d,%d) uncovered: %w",
				key, start, end, ErrCoverageGap)
		}
	}

	a.sealed = true

	return nil
}

// Keys returns all series keys in sorted order.
func (a *Aggregator) Keys() ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.sealed {
		return nil, ErrNotSealed
	}

	return a.sortedKeys(), nil
}

// Series returns the sealed series for key.
func (a *Aggregator) Series(key string) (*Series, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.sealed {
		return nil, ErrNotSealed
	}
	s, ok := a.series[key]
	if !ok {
		return nil, fmt.Errorf("series %q: %w", key, ErrUnknownSeries)
	}

	return s, nil
}

// Len returns the aggregated length of the series for key.
func (a *Aggregator) Len(key string) (int, error) {
	s, err := a.Series(key)
	if err != nil {
		return 0, err
	}

	return s.Len(), nil
}

// Count returns the number of series seen so far. Usable before Seal.
func (a *Aggregator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.series)
}

// Channels returns the configured per-step channel count.
func (a *Aggregator) Channels() int {
	return a.channels
}

// Overlap returns the total number of step writes that landed on an
// already covered step and were max-combined.
func (a *Aggregator) Overlap() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.overlap
}

// sortedKeys must be called with at least a read lock held.
func (a *Aggregator) sortedKeys() []string {
	keys := make([]string, 0, len(a.series))
	for k := range a.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Key returns the series identifier.
func (s *Series) Key() string {
	return s.key
}

// Len returns the series length: one past the last covered step.
func (s *Series) Len() int {
	return len(s.covered)
}

// Column returns the score sequence for one channel. The returned slice
// is the aggregator's backing storage; callers must not modify it.
// ch must be in [0, channels).
func (s *Series) Column(ch int) []float64 {
	return s.columns[ch]
}

// grow extends the series to cover steps [0, end).
func (s *Series) grow(end int) {
	if end <= len(s.covered) {
		return
	}
	add := end - len(s.covered)
	s.covered = append(s.covered, make([]bool, add)...)
	for ch := range s.columns {
		s.columns[ch] = append(s.columns[ch], make([]float64, add)...)
	}
}

// firstGap returns the first uncovered step range, if any.
func (s *Series) firstGap() (start, end int, ok bool) {
	for i := 0; i < len(s.covered); i++ {
		if s.covered[i] {
			continue
		}
		start = i
		end = i
		for end < len(s.covered) && !s.covered[end] {
			end++
		}

		return start, end, true
	}

	return 0, 0, false
}
