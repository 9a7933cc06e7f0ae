package keyfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

// Writer writes keys one per line. Close must be called to flush the
// compression stream and commit the file.
type Writer struct {
	buf     *bufio.Writer
	closers []func() error
	commit  func() error
	discard func()
	count   uint64
}

// fileMode is the mode of committed key files.
const fileMode = 0o644

// Create creates a key file at path, compressed according to its extension.
// The data is written to a temporary file that replaces path on Close.
func Create(path string) (*Writer, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create key file: %w", err)
	}

	w := &Writer{closers: []func() error{tmp.Close}}
	w.discard = func() { os.Remove(tmp.Name()) }
	w.commit = func() error {
		if err := os.Chmod(tmp.Name(), fileMode); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("commit key file: %w", err)
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("commit key file: %w", err)
		}
		return nil
	}

	var out io.Writer = tmp
	switch CompressionFor(path) {
	case CompressionGzip:
		zw := gzip.NewWriter(tmp)
		out = zw
		w.closers = append(w.closers, zw.Close)
	case CompressionZstd:
		zw, err := zstd.NewWriter(tmp)
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("create zstd key file: %w", err)
		}
		out = zw
		w.closers = append(w.closers, zw.Close)
	case CompressionLZ4:
		zw := lz4.NewWriter(tmp)
		out = zw
		w.closers = append(w.closers, zw.Close)
	}

	w.buf = bufio.NewWriter(out)
	return w, nil
}

// NewWriter writes uncompressed keys to an existing writer. Close only
// flushes.
func NewWriter(out io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriter(out)}
}

// WriteKey appends one key line.
func (w *Writer) WriteKey(key uint32) error {
	if _, err := w.buf.WriteString(keyspace.FormatKey(key) + "\n"); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of keys written so far.
func (w *Writer) Count() uint64 {
	return w.count
}

// Close flushes buffered keys, closes the compression stream and the file,
// and moves the file into place.
func (w *Writer) Close() error {
	errs := []error{w.buf.Flush()}
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		if w.discard != nil {
			w.discard()
		}
		return fmt.Errorf("close key file: %w", err)
	}
	if w.commit != nil {
		return w.commit()
	}
	return nil
}

// WriteDerived writes the 65536 keys derived from a middle fragment to w.
func WriteDerived(w *Writer, middle uint16) error {
	var err error
	keyspace.DeriveKeys(middle, func(key uint32) bool {
		err = w.WriteKey(key)
		return err == nil
	})
	return err
}
