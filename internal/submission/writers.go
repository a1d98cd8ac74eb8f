package submission

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/okian/somnus/pkg/metrics"
)

// Writer materializes the ordered rows in one output format.
type Writer interface {
	Write(rows []Row) error
}

// Factory builds a writer bound to a destination path. The path "-"
// means stdout for the text formats.
type Factory func(path string) (Writer, error)

// formats is the writer registry, populated at init.
var formats = map[string]Factory{} //nolint:gochecknoglobals // intentional global registry

func init() { //nolint:gochecknoinits // intentional registry setup
	Register("csv", func(path string) (Writer, error) { return &csvWriter{path: path}, nil })
	Register("jsonl", func(path string) (Writer, error) { return &jsonlWriter{path: path}, nil })
	Register("sqlite", func(path string) (Writer, error) { return &sqliteWriter{path: path}, nil })
}

// Register adds a format to the registry, replacing any previous entry
// with the same name.
func Register(name string, f Factory) {
	formats[name] = f
}

// NewWriter builds the writer for format, bound to path.
func NewWriter(format, path string) (Writer, error) {
	f, ok := formats[format]
	if !ok {
		return nil, fmt.Errorf("format %q (known: %v): %w", format, Formats(), ErrUnknownFormat)
	}

	return f(path)
}

// Formats lists the registered format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// openDest opens the destination, treating "-" as stdout.
func openDest(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output %q: %w", path, err)
	}

	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// csvWriter emits the header and one record per row.
type csvWriter struct {
	path string
}

func (w *csvWriter) Write(rows []Row) error {
	dest, err := openDest(w.path)
	if err != nil {
		return err
	}
	defer dest.Close()

	cw := csv.NewWriter(dest)
	if err := cw.Write([]string{"row_id", "series_id", "step", "event", "score"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.RowID),
			r.SeriesKey,
			strconv.Itoa(r.Step),
			r.Label,
			strconv.FormatFloat(r.Score, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", r.RowID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	metrics.RecordRowsWritten(len(rows))

	return nil
}

// jsonlWriter emits one JSON object per line.
type jsonlWriter struct {
	path string
}

func (w *jsonlWriter) Write(rows []Row) error {
	dest, err := openDest(w.path)
	if err != nil {
		return err
	}
	defer dest.Close()

	enc := json.NewEncoder(dest)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write jsonl row %d: %w", r.RowID, err)
		}
	}
	metrics.RecordRowsWritten(len(rows))

	return nil
}
