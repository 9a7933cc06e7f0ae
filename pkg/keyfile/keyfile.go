// Package keyfile reads and writes dictionary key files: plain text, one hex
// key per line. Files ending in .gz, .zst or .lz4 are transparently
// (de)compressed.
package keyfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

// DefaultName is the key file used when none is configured.
const DefaultName = "keys.txt"

// ErrEmpty is returned when a key file holds no keys.
var ErrEmpty = errors.New("keyfile: no keys in file")

// Compression identifies the container format of a key file.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// CompressionFor picks the compression from the file extension.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open opens a key file for reading, decompressing it when needed.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open key file: %w", err)
	}

	rc := &readCloser{Reader: f, closers: []func() error{f.Close}}

	switch CompressionFor(path) {
	case CompressionGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip key file: %w", err)
		}
		rc.Reader = zr
		rc.closers = append(rc.closers, zr.Close)
	case CompressionZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd key file: %w", err)
		}
		rc.Reader = zr
		rc.closers = append(rc.closers, func() error { zr.Close(); return nil })
	case CompressionLZ4:
		rc.Reader = lz4.NewReader(f)
	}

	return rc, nil
}

// Line is one parsed line of a key file. Blank lines are reported with
// Blank set so callers keep line numbering stable.
type Line struct {
	Number uint64 // 1-based
	Key    uint32
	Blank  bool
}

// Scan reads r line by line and calls fn for each line in order. A line that
// is not a valid key aborts the scan with an error naming the line. Returning
// false from fn stops the scan without error.
func Scan(r io.Reader, fn func(Line) bool) error {
	sc := bufio.NewScanner(r)
	var n uint64
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			if !fn(Line{Number: n, Blank: true}) {
				return nil
			}
			continue
		}
		key, err := keyspace.ParseKey(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if !fn(Line{Number: n, Key: key}) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	return nil
}

// Stats summarizes a key file.
type Stats struct {
	Lines uint64
	Keys  uint64
}

// Inspect validates every line of the file at path and counts its keys.
// A file without keys yields ErrEmpty.
func Inspect(path string) (Stats, error) {
	rc, err := Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer rc.Close()

	var st Stats
	err = Scan(rc, func(l Line) bool {
		st.Lines = l.Number
		if !l.Blank {
			st.Keys++
		}
		return true
	})
	if err != nil {
		return st, fmt.Errorf("%s: %w", path, err)
	}
	if st.Keys == 0 {
		return st, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return st, nil
}
