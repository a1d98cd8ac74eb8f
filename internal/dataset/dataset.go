// Package dataset streams windows out of a chunk store. Two layouts
// are supported: a directory of standalone chunk files and a SQLite
// chunk store; both stream in (series key, start) order so runs are
// reproducible.
package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/somnus/internal/domain/model"
)

// Source streams the windows of a chunk store. Stream sends every
// window on the first channel, then closes it; at most one error is
// sent on the second channel before it closes. Count reports the total
// number of windows up front.
type Source interface {
	Stream(ctx context.Context) (<-chan model.Window, <-chan error)
	Count() int
	Close() error
}

// Open picks the source for path: SQLite for *.db files, a chunk-file
// directory otherwise.
func Open(path string) (Source, error) {
	if filepath.Ext(path) == ".db" {
		return NewSQLiteSource(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk store %q: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open chunk store %q: not a directory and not a .db file", path)
	}

	return NewDirSource(path)
}
