// Package submission turns decoded events into the ordered output
// table. The assembler maps aggregated step indices back to the native
// time base and keeps rows sorted while parallel decoders emit, so
// producing the final table is a single ascending walk.
package submission

import (
	"sync"

	"github.com/google/btree"
	"github.com/okian/somnus/internal/domain/model"
)

// btreeDegree balances node fan-out for row-sized items.
const btreeDegree = 32

// Row is one line of the output table.
type Row struct {
	RowID     int     `json:"row_id"`
	SeriesKey string  `json:"series_id"`
	Step      int     `json:"step"`
	Label     string  `json:"event"`
	Score     float64 `json:"score"`
}

// rowItem orders rows inside the tree by (series, step, label).
type rowItem struct {
	Row
}

// Less implements btree.Item.
func (r rowItem) Less(than btree.Item) bool {
	o := than.(rowItem)
	if r.SeriesKey != o.SeriesKey {
		return r.SeriesKey < o.SeriesKey
	}
	if r.Step != o.Step {
		return r.Step < o.Step
	}

	return r.Label < o.Label
}

// Assembler collects decoded events as ordered output rows. Add maps
// an event's aggregated step i to the native time base as (i-1)*hop,
// clamped at 0 so output steps stay non-negative.
type Assembler struct {
	mu   sync.Mutex
	hop  int
	tree *btree.BTree
}

// NewAssembler creates an assembler for the given hop length. hop must
// be at least 1.
func NewAssembler(hop int) *Assembler {
	return &Assembler{
		hop:  hop,
		tree: btree.New(btreeDegree),
	}
}

// Add inserts one event. When the clamp folds two events of the same
// series and label onto the same output step, the higher score wins,
// so the table never carries duplicate (series, step, label) rows.
func (a *Assembler) Add(ev model.Event) {
	step := (ev.Step - 1) * a.hop
	if step < 0 {
		step = 0
	}

	item := rowItem{Row{
		SeriesKey: ev.SeriesKey,
		Step:      step,
		Label:     ev.Label,
		Score:     ev.Score,
	}}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing := a.tree.Get(item); existing != nil {
		if existing.(rowItem).Score >= item.Score {
			return
		}
	}
	a.tree.ReplaceOrInsert(item)
}

// Len returns the number of rows assembled so far.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.tree.Len()
}

// Rows walks the tree ascending and assigns sequential row IDs. Call
// it once decoding has completed; rows added later are not reflected
// in IDs handed out earlier.
func (a *Assembler) Rows() []Row {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]Row, 0, a.tree.Len())
	a.tree.Ascend(func(i btree.Item) bool {
		r := i.(rowItem).Row
		r.RowID = len(rows)
		rows = append(rows, r)

		return true
	})

	return rows
}
