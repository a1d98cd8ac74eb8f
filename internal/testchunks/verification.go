package testchunks

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/okian/somnus/internal/submission"
	"github.com/okian/somnus/pkg/logger"
)

// scoreTolerance bounds the drift allowed between a planted spike's
// probability and the score the pipeline reports for it.
const scoreTolerance = 1e-9

// Verify compares a submission CSV produced over a generated store
// against the plan the generator wrote beside it.
func Verify(ctx context.Context, planPath, submissionPath string) error {
	plan, err := readPlan(planPath)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	rows, err := readSubmissionCSV(submissionPath)
	if err != nil {
		return fmt.Errorf("read submission: %w", err)
	}

	logger.Get().Info(ctx, "verifying submission",
		logger.Int("planned", len(plan.Events)),
		logger.Int("rows", len(rows)))

	want := make(map[string]PlannedEvent, len(plan.Events))
	for _, ev := range plan.Events {
		want[tripletKey(ev.SeriesKey, ev.OutputStep, ev.Label)] = ev
	}

	var extra, offScore int
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		k := tripletKey(r.SeriesKey, r.Step, r.Label)
		ev, ok := want[k]
		if !ok {
			extra++
			logger.Get().Warn(ctx, "row not in plan",
				logger.Series(r.SeriesKey),
				logger.Int("step", r.Step),
				logger.String("event", r.Label))

			continue
		}
		seen[k] = true
		if math.Abs(r.Score-ev.Score) > scoreTolerance {
			offScore++
			logger.Get().Warn(ctx, "row score drifted from plan",
				logger.Series(r.SeriesKey),
				logger.Int("step", r.Step),
				logger.Float64("got", r.Score),
				logger.Float64("want", ev.Score))
		}
	}

	var missing int
	for k, ev := range want {
		if !seen[k] {
			missing++
			logger.Get().Warn(ctx, "planted event missing from submission",
				logger.Series(ev.SeriesKey),
				logger.Int("step", ev.OutputStep),
				logger.String("event", ev.Label))
		}
	}

	if missing+extra+offScore > 0 {
		return fmt.Errorf("%w: %d missing, %d extra, %d off-score",
			ErrMismatch, missing, extra, offScore)
	}

	logger.Get().Info(ctx, "submission matches plan", logger.Int("events", len(rows)))

	return nil
}

func tripletKey(series string, step int, label string) string {
	return series + "|" + strconv.Itoa(step) + "|" + label
}

// readSubmissionCSV parses the table the csv writer produces.
func readSubmissionCSV(path string) ([]submission.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header", path)
	}

	rows := make([]submission.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != 5 {
			return nil, fmt.Errorf("%s: row %d has %d columns, want 5", path, i, len(rec))
		}

		rowID, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s: row %d id: %w", path, i, err)
		}
		step, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("%s: row %d step: %w", path, i, err)
		}
		score, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d score: %w", path, i, err)
		}

		rows = append(rows, submission.Row{
			RowID:     rowID,
			SeriesKey: rec[1],
			Step:      step,
			Label:     rec[3],
			Score:     score,
		})
	}

	return rows, nil
}
