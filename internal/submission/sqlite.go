package submission

import (
	"database/sql"
	"fmt"

	"github.com/okian/somnus/pkg/metrics"
	_ "modernc.org/sqlite" // sqlite driver
)

// submissionSchema mirrors the text formats column for column.
const submissionSchema = `
CREATE TABLE IF NOT EXISTS submission (
	row_id    INTEGER PRIMARY KEY,
	series_id TEXT    NOT NULL,
	step      INTEGER NOT NULL,
	event     TEXT    NOT NULL,
	score     REAL    NOT NULL
);`

// sqliteWriter rewrites the submission table in a single transaction.
type sqliteWriter struct {
	path string
}

func (w *sqliteWriter) Write(rows []Row) error {
	db, err := sql.Open("sqlite", w.path)
	if err != nil {
		return fmt.Errorf("open submission db %q: %w", w.path, err)
	}
	defer db.Close()

	if _, err := db.Exec(submissionSchema); err != nil {
		return fmt.Errorf("init submission table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin submission write: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM submission`); err != nil {
		tx.Rollback()

		return fmt.Errorf("clear submission table: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO submission (row_id, series_id, step, event, score) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()

		return fmt.Errorf("prepare submission insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.RowID, r.SeriesKey, r.Step, r.Label, r.Score); err != nil {
			tx.Rollback()

			return fmt.Errorf("insert submission row %d: %w", r.RowID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	metrics.RecordRowsWritten(len(rows))

	return nil
}
