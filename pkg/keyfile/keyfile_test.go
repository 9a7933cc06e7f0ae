package keyfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionFor(t *testing.T) {
	t.Parallel()

	tests := map[string]Compression{
		"keys.txt":      CompressionNone,
		"keys":          CompressionNone,
		"keys.txt.gz":   CompressionGzip,
		"keys.TXT.GZ":   CompressionGzip,
		"keys.zst":      CompressionZstd,
		"keys.txt.zstd": CompressionZstd,
		"keys.lz4":      CompressionLZ4,
	}
	for name, want := range tests {
		assert.Equal(t, want, CompressionFor(name), name)
	}
}

func TestScanKeepsLineNumbers(t *testing.T) {
	t.Parallel()

	input := "00000001\n\nDEADBEEF\r\n  ffffffff  \n"

	var lines []Line
	err := Scan(strings.NewReader(input), func(l Line) bool {
		lines = append(lines, l)
		return true
	})
	require.NoError(t, err)

	assert.Equal(t, []Line{
		{Number: 1, Key: 0x00000001},
		{Number: 2, Blank: true},
		{Number: 3, Key: 0xDEADBEEF},
		{Number: 4, Key: 0xFFFFFFFF},
	}, lines)
}

func TestScanRejectsBadLine(t *testing.T) {
	t.Parallel()

	err := Scan(strings.NewReader("00000001\nnot-a-key\n"), func(Line) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestScanStopsEarly(t *testing.T) {
	t.Parallel()

	n := 0
	err := Scan(strings.NewReader("01\n02\n03\n"), func(Line) bool {
		n++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInspect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("01\n\n02\n"), 0o600))
	st, err := Inspect(good)
	require.NoError(t, err)
	assert.Equal(t, Stats{Lines: 3, Keys: 2}, st)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o600))
	_, err = Inspect(empty)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Inspect(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteReadRoundTripCompressed(t *testing.T) {
	t.Parallel()

	keys := []uint32{0x00000001, 0xDEADBEEF, 0xFFFFFFFF}

	for _, name := range []string{"keys.txt", "keys.txt.gz", "keys.zst", "keys.lz4"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)
			w, err := Create(path)
			require.NoError(t, err)
			for _, k := range keys {
				require.NoError(t, w.WriteKey(k))
			}
			assert.Equal(t, uint64(3), w.Count())
			require.NoError(t, w.Close())

			rc, err := Open(path)
			require.NoError(t, err)
			defer rc.Close()

			var got []uint32
			require.NoError(t, Scan(rc, func(l Line) bool {
				got = append(got, l.Key)
				return true
			}))
			assert.Equal(t, keys, got)
		})
	}
}

func TestCreateLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := Create(filepath.Join(dir, "keys.txt"))
	require.NoError(t, err)
	require.NoError(t, w.WriteKey(1))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keys.txt", entries[0].Name())
}

func TestCreateCommitsReadableFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys.txt")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteKey(1))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestCreateRemovesTempFileWhenCloseFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := Create(filepath.Join(dir, "keys.txt.gz"))
	require.NoError(t, err)
	require.NoError(t, w.WriteKey(1))

	full := errors.New("no space left on device")
	w.closers = append(w.closers, func() error { return full })
	require.ErrorIs(t, w.Close(), full)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteDerived(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, WriteDerived(w, 0xABCD))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 65536)
	assert.Equal(t, "00ABCD00", lines[0])
	assert.Equal(t, "00ABCD01", lines[1])
	assert.Equal(t, "01ABCD00", lines[256])
	assert.Equal(t, "FFABCDFF", lines[65535])

	st := uint64(0)
	require.NoError(t, Scan(strings.NewReader(buf.String()), func(l Line) bool {
		st++
		return true
	}))
	assert.Equal(t, uint64(65536), st)
}
