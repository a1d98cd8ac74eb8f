package dataset

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/okian/somnus/internal/domain/model"
)

// Binary chunk layout, all integers little-endian:
//
//	magic      4 bytes "SOMC"
//	version    uint16
//	key length uint16
//	key        UTF-8 bytes
//	start      int64
//	steps      uint32
//	featureDim uint32
//	payload    steps*featureDim float64
const (
	chunkMagic   = "SOMC"
	codecVersion = 1

	// maxChunkFloats bounds the payload a header may announce, so a
	// corrupt length field cannot drive a giant allocation.
	maxChunkFloats = 1 << 26
)

// EncodeChunk writes one window in the binary chunk format.
func EncodeChunk(w io.Writer, win model.Window) error {
	if win.SeriesKey == "" || len(win.SeriesKey) > 1<<16-1 {
		return fmt.Errorf("series key length %d: %w", len(win.SeriesKey), ErrBadChunk)
	}
	if win.FeatureDim < 1 {
		return fmt.Errorf("series %q: feature dim %d: %w", win.SeriesKey, win.FeatureDim, ErrBadChunk)
	}
	steps := win.Steps()
	if steps*win.FeatureDim != len(win.Features) {
		return fmt.Errorf("series %q: %d features do not tile %d*%d: %w",
			win.SeriesKey, len(win.Features), steps, win.FeatureDim, ErrBadChunk)
	}

	if _, err := w.Write([]byte(chunkMagic)); err != nil {
		return fmt.Errorf("write chunk magic: %w", err)
	}
	for _, v := range []any{
		uint16(codecVersion),
		uint16(len(win.SeriesKey)),
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write chunk header: %w", err)
		}
	}
	if _, err := w.Write([]byte(win.SeriesKey)); err != nil {
		return fmt.Errorf("write chunk key: %w", err)
	}
	for _, v := range []any{
		int64(win.Start),
		uint32(steps),
		uint32(win.FeatureDim),
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write chunk header: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, win.Features); err != nil {
		return fmt.Errorf("write chunk payload: %w", err)
	}

	return nil
}

// chunkHeader is the decoded fixed part of one chunk.
type chunkHeader struct {
	key     string
	start   int64
	steps   uint32
	featDim uint32
}

// decodeHeader reads and validates everything up to the payload.
func decodeHeader(r io.Reader) (chunkHeader, error) {
	var h chunkHeader

	magic := make([]byte, len(chunkMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return h, fmt.Errorf("read chunk magic: %v: %w", err, ErrBadChunk)
	}
	if string(magic) != chunkMagic {
		return h, fmt.Errorf("magic %q, want %q: %w", magic, chunkMagic, ErrBadChunk)
	}

	var version, keyLen uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return h, fmt.Errorf("read chunk version: %v: %w", err, ErrBadChunk)
	}
	if version != codecVersion {
		return h, fmt.Errorf("version %d, want %d: %w", version, codecVersion, ErrBadChunk)
	}
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return h, fmt.Errorf("read chunk key length: %v: %w", err, ErrBadChunk)
	}
	if keyLen == 0 {
		return h, fmt.Errorf("empty series key: %w", ErrBadChunk)
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return h, fmt.Errorf("read chunk key: %v: %w", err, ErrBadChunk)
	}
	h.key = string(key)

	if err := binary.Read(r, binary.LittleEndian, &h.start); err != nil {
		return h, fmt.Errorf("read chunk start: %v: %w", err, ErrBadChunk)
	}
	if h.start < 0 {
		return h, fmt.Errorf("negative start %d: %w", h.start, ErrBadChunk)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.steps); err != nil {
		return h, fmt.Errorf("read chunk steps: %v: %w", err, ErrBadChunk)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.featDim); err != nil {
		return h, fmt.Errorf("read chunk feature dim: %v: %w", err, ErrBadChunk)
	}
	if h.featDim == 0 {
		return h, fmt.Errorf("zero feature dim: %w", ErrBadChunk)
	}
	if uint64(h.steps)*uint64(h.featDim) > maxChunkFloats {
		return h, fmt.Errorf("payload %dx%d floats beyond limit: %w", h.steps, h.featDim, ErrBadChunk)
	}

	return h, nil
}

// DecodeChunk reads one window in the binary chunk format.
func DecodeChunk(r io.Reader) (model.Window, error) {
	h, err := decodeHeader(r)
	if err != nil {
		return model.Window{}, err
	}

	features := make([]float64, int(h.steps)*int(h.featDim))
	if err := binary.Read(r, binary.LittleEndian, features); err != nil {
		return model.Window{}, fmt.Errorf("series %q: read payload: %v: %w", h.key, err, ErrBadChunk)
	}

	return model.Window{
		SeriesKey:  h.key,
		Start:      int(h.start),
		FeatureDim: int(h.featDim),
		Features:   features,
	}, nil
}

// WriteChunkFile writes one window as a standalone chunk file.
func WriteChunkFile(path string, win model.Window) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chunk %q: %w", path, err)
	}
	if err := EncodeChunk(f, win); err != nil {
		f.Close()

		return fmt.Errorf("chunk %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close chunk %q: %w", path, err)
	}

	return nil
}

// ReadChunkFile reads a standalone chunk file. Trailing bytes after the
// payload mean the file was not produced by this codec.
func ReadChunkFile(path string) (model.Window, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Window{}, fmt.Errorf("open chunk %q: %w", path, err)
	}
	defer f.Close()

	win, err := DecodeChunk(f)
	if err != nil {
		return model.Window{}, fmt.Errorf("chunk %q: %w", path, err)
	}

	var extra [1]byte
	if n, _ := f.Read(extra[:]); n != 0 {
		return model.Window{}, fmt.Errorf("chunk %q: trailing bytes after payload: %w", path, ErrBadChunk)
	}

	return win, nil
}

// readChunkFileHeader decodes only the header of a chunk file.
func readChunkFileHeader(path string) (chunkHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return chunkHeader{}, fmt.Errorf("open chunk %q: %w", path, err)
	}
	defer f.Close()

	h, err := decodeHeader(f)
	if err != nil {
		return chunkHeader{}, fmt.Errorf("chunk %q: %w", path, err)
	}

	return h, nil
}
