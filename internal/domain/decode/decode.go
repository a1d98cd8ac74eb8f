// Package decode turns per-step score sequences into sparse event lists.
//
// The rule is deterministic and depends only on (scores, threshold,
// min-separation): steps scoring at or above the threshold are
// candidates; a candidate joins the current group when its gap to the
// previous candidate is smaller than the min-separation radius,
// otherwise it starts a new group; each group emits exactly one event
// at its maximum-score step, ties going to the smallest index.
package decode

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/somnus/internal/domain/aggregate"
	"github.com/okian/somnus/internal/domain/model"
)

// ChannelLabel binds one model output channel to the event name it
// emits.
type ChannelLabel struct {
	Channel int    // model output channel index
	Label   string // event name, e.g. "onset"
}

// Policy carries the decoding parameters as one value so the decoder
// stays pure and independently testable.
type Policy struct {
	Threshold     float64        // candidate cutoff, scores >= Threshold qualify
	MinSeparation int            // grouping radius in aggregated steps, >= 1
	Channels      []ChannelLabel // channels to decode
}

// Validate checks the policy domain. It must pass before any inference
// runs; a threshold like 1.5 is rejected here, never mid-run.
func (p Policy) Validate() error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold %v outside [0,1]: %w", p.Threshold, ErrInvalidPolicy)
	}
	if p.MinSeparation < 1 {
		return fmt.Errorf("min separation %d below 1: %w", p.MinSeparation, ErrInvalidPolicy)
	}
	if len(p.Channels) == 0 {
		return fmt.Errorf("no channels configured: %w", ErrInvalidPolicy)
	}

	labels := make(map[string]struct{}, len(p.Channels))
	channels := make(map[int]struct{}, len(p.Channels))
	for _, cl := range p.Channels {
		if cl.Channel < 0 {
			return fmt.Errorf("negative channel index %d: %w", cl.Channel, ErrInvalidPolicy)
		}
		if cl.Label == "" {
			return fmt.Errorf("channel %d has an empty label: %w", cl.Channel, ErrInvalidPolicy)
		}
		if _, dup := labels[cl.Label]; dup {
			return fmt.Errorf("duplicate label %q: %w", cl.Label, ErrInvalidPolicy)
		}
		if _, dup := channels[cl.Channel]; dup {
			return fmt.Errorf("duplicate channel %d: %w", cl.Channel, ErrInvalidPolicy)
		}
		labels[cl.Label] = struct{}{}
		channels[cl.Channel] = struct{}{}
	}

	return nil
}

// Peak is one decoded event position within a single score sequence.
type Peak struct {
	Step  int     // index into the score sequence
	Score float64 // score at that index
}

// Peaks decodes one score sequence. Candidates are indices scoring at
// least threshold; consecutive candidates closer than minSep form one
// group; each group contributes its maximum-score index, ties going to
// the smallest index. No candidate at all yields an empty result, not
// an error. A sequence shorter than minSep degenerates to at most one
// group by construction.
func Peaks(scores []float64, threshold float64, minSep int) []Peak {
	var out []Peak

	bestStep := -1
	bestScore := 0.0
	prev := 0

	for i, v := range scores {
		if v < threshold {
			continue
		}
		if bestStep >= 0 && i-prev >= minSep {
			// Gap reached the radius: the group is complete.
			out = append(out, Peak{Step: bestStep, Score: bestScore})
			bestStep = -1
		}
		if bestStep < 0 || v > bestScore {
			bestStep = i
			bestScore = v
		}
		prev = i
	}
	if bestStep >= 0 {
		out = append(out, Peak{Step: bestStep, Score: bestScore})
	}

	return out
}

// Series decodes every configured channel of one sealed series. Events
// come back ordered by policy channel order, then step ascending.
func Series(key string, s *aggregate.Series, p Policy) []model.Event {
	var events []model.Event
	for _, cl := range p.Channels {
		for _, pk := range Peaks(s.Column(cl.Channel), p.Threshold, p.MinSeparation) {
			events = append(events, model.Event{
				SeriesKey: key,
				Step:      pk.Step,
				Channel:   cl.Channel,
				Label:     cl.Label,
				Score:     pk.Score,
			})
		}
	}

	return events
}

// task is one (series, channel) unit of decoding work.
type task struct {
	key     string
	channel int
	label   string
	scores  []float64
}

// All decodes every (series, channel) pair of a sealed aggregator with
// a bounded worker pool. Workers write into task-indexed slots, so the
// output order is deterministic regardless of scheduling: sorted series
// key first, then policy channel order, then step ascending.
func All(ctx context.Context, agg *aggregate.Aggregator, p Policy, workers int) ([]model.Event, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for _, cl := range p.Channels {
		if cl.Channel >= agg.Channels() {
			return nil, fmt.Errorf("channel %d outside block channels [0,%d): %w",
				cl.Channel, agg.Channels(), ErrInvalidPolicy)
		}
	}

	keys, err := agg.Keys()
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}

	tasks := make([]task, 0, len(keys)*len(p.Channels))
	for _, key := range keys {
		s, err := agg.Series(key)
		if err != nil {
			return nil, fmt.Errorf("read series %q: %w", key, err)
		}
		for _, cl := range p.Channels {
			tasks = append(tasks, task{
				key:     key,
				channel: cl.Channel,
				label:   cl.Label,
				scores:  s.Column(cl.Channel),
			})
		}
	}

	if workers < 1 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	results := make([][]model.Event, len(tasks))

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := range tasks {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				t := tasks[i]
				peaks := Peaks(t.scores, p.Threshold, p.MinSeparation)
				if len(peaks) == 0 {
					continue
				}
				events := make([]model.Event, 0, len(peaks))
				for _, pk := range peaks {
					events = append(events, model.Event{
						SeriesKey: t.key,
						Step:      pk.Step,
						Channel:   t.channel,
						Label:     t.label,
						Score:     pk.Score,
					})
				}
				results[i] = events
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]model.Event, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}

	return out, nil
}
