package dataset

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/okian/somnus/internal/domain/model"
	_ "modernc.org/sqlite" // sqlite driver
)

// chunksSchema holds one window per row, keyed so the natural read
// order is the stream order.
const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	series_id   TEXT    NOT NULL,
	start       INTEGER NOT NULL,
	steps       INTEGER NOT NULL,
	feature_dim INTEGER NOT NULL,
	features    BLOB    NOT NULL,
	PRIMARY KEY (series_id, start)
);`

// SQLiteSource streams windows out of a SQLite chunk store.
type SQLiteSource struct {
	db    *sql.DB
	count int
}

// NewSQLiteSource opens the store and counts its windows up front.
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chunk store %q: %w", path, err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		db.Close()

		return nil, fmt.Errorf("count chunks in %q: %w", path, err)
	}

	return &SQLiteSource{db: db, count: count}, nil
}

// Count returns the number of windows in the store.
func (s *SQLiteSource) Count() int {
	return s.count
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Stream reads rows in (series_id, start) order and sends one window
// per row.
func (s *SQLiteSource) Stream(ctx context.Context) (<-chan model.Window, <-chan error) {
	windows := make(chan model.Window)
	errs := make(chan error, 1)

	go func() {
		defer close(windows)
		defer close(errs)

		rows, err := s.db.QueryContext(ctx,
			`SELECT series_id, start, steps, feature_dim, features FROM chunks ORDER BY series_id, start`)
		if err != nil {
			errs <- fmt.Errorf("query chunks: %w", err)

			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				key     string
				start   int64
				steps   int
				featDim int
				blob    []byte
			)
			if err := rows.Scan(&key, &start, &steps, &featDim, &blob); err != nil {
				errs <- fmt.Errorf("scan chunk row: %w", err)

				return
			}

			win, err := windowFromRow(key, start, steps, featDim, blob)
			if err != nil {
				errs <- err

				return
			}

			select {
			case windows <- win:
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}
		if err := rows.Err(); err != nil {
			errs <- fmt.Errorf("iterate chunks: %w", err)
		}
	}()

	return windows, errs
}

// windowFromRow validates one chunk row and decodes its payload.
func windowFromRow(key string, start int64, steps, featDim int, blob []byte) (model.Window, error) {
	if key == "" || start < 0 || steps < 0 || featDim < 1 {
		return model.Window{}, fmt.Errorf("series %q: row geometry (start %d, steps %d, dim %d): %w",
			key, start, steps, featDim, ErrBadChunk)
	}
	if steps*featDim > maxChunkFloats {
		return model.Window{}, fmt.Errorf("series %q: payload %dx%d floats beyond limit: %w",
			key, steps, featDim, ErrBadChunk)
	}
	if len(blob) != steps*featDim*8 {
		return model.Window{}, fmt.Errorf("series %q: payload %d bytes, want %d: %w",
			key, len(blob), steps*featDim*8, ErrBadChunk)
	}

	features := make([]float64, steps*featDim)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, features); err != nil {
		return model.Window{}, fmt.Errorf("series %q: decode payload: %v: %w", key, err, ErrBadChunk)
	}

	return model.Window{
		SeriesKey:  key,
		Start:      int(start),
		FeatureDim: featDim,
		Features:   features,
	}, nil
}

// StoreWriter fills a SQLite chunk store inside one transaction; Close
// commits. It is the writing counterpart of SQLiteSource, used by the
// synthetic-data generator and the tests.
type StoreWriter struct {
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
}

// NewStoreWriter creates or opens the store at path and begins the
// write transaction.
func NewStoreWriter(path string) (*StoreWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chunk store %q: %w", path, err)
	}
	if _, err := db.Exec(chunksSchema); err != nil {
		db.Close()

		return nil, fmt.Errorf("init chunk store %q: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()

		return nil, fmt.Errorf("configure chunk store %q: %w", path, err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("begin chunk store write: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO chunks (series_id, start, steps, feature_dim, features) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		db.Close()

		return nil, fmt.Errorf("prepare chunk insert: %w", err)
	}

	return &StoreWriter{db: db, tx: tx, stmt: stmt}, nil
}

// Put stages one window.
func (w *StoreWriter) Put(win model.Window) error {
	if win.SeriesKey == "" || win.Start < 0 || win.FeatureDim < 1 {
		return fmt.Errorf("series %q: window geometry (start %d, dim %d): %w",
			win.SeriesKey, win.Start, win.FeatureDim, ErrBadChunk)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, win.Features); err != nil {
		return fmt.Errorf("series %q: encode payload: %w", win.SeriesKey, err)
	}
	if _, err := w.stmt.Exec(win.SeriesKey, win.Start, win.Steps(), win.FeatureDim, buf.Bytes()); err != nil {
		return fmt.Errorf("series %q: insert chunk: %w", win.SeriesKey, err)
	}

	return nil
}

// Close commits the staged windows and releases the handle.
func (w *StoreWriter) Close() error {
	w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		w.db.Close()

		return fmt.Errorf("commit chunk store: %w", err)
	}

	return w.db.Close()
}
