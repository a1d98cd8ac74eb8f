package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/okian/somnus/internal/domain/model"
)

// chunkExt is the file extension of standalone chunk files.
const chunkExt = ".chk"

// DirSource streams every chunk file under one directory. Discovery
// happens at construction: headers are read once so the stream can run
// in (series key, start) order regardless of directory listing order.
type DirSource struct {
	paths []string
}

// NewDirSource scans dir for chunk files and orders them.
func NewDirSource(dir string) (*DirSource, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+chunkExt))
	if err != nil {
		return nil, fmt.Errorf("scan chunk dir %q: %w", dir, err)
	}

	type entry struct {
		path  string
		key   string
		start int64
	}
	entries := make([]entry, 0, len(paths))
	for _, path := range paths {
		h, err := readChunkFileHeader(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{path: path, key: h.key, start: h.start})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}

		return entries[i].start < entries[j].start
	})

	ordered := make([]string, len(entries))
	for i, e := range entries {
		ordered[i] = e.path
	}

	return &DirSource{paths: ordered}, nil
}

// Count returns the number of discovered chunk files.
func (s *DirSource) Count() int {
	return len(s.paths)
}

// Close is a no-op; the source holds no open handles between reads.
func (s *DirSource) Close() error {
	return nil
}

// Stream reads each chunk file in order and sends its window.
func (s *DirSource) Stream(ctx context.Context) (<-chan model.Window, <-chan error) {
	windows := make(chan model.Window)
	errs := make(chan error, 1)

	go func() {
		defer close(windows)
		defer close(errs)

		for _, path := range s.paths {
			win, err := ReadChunkFile(path)
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
	}()

	return windows, errs
}
