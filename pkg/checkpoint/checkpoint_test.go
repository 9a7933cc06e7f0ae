package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

var testIdentity = Identity{
	Address: "1.1.5",
	Serial:  []byte{0x00, 0xFA, 0x12, 0x34, 0x56, 0x78},
	Seed:    42,
}

func TestIdentityName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.1.5_00-FA-12-34-56-78_42", testIdentity.Name())
	assert.Equal(t, "1.1.5_00-FA-12-34-56-78_42_level3.txt", testIdentity.RecordName(keyspace.StageFullSpace))

	sharded := testIdentity
	sharded.Shard = keyspace.Shard{MaxWorkers: 3, WorkerIndex: 2}
	assert.Equal(t, "1.1.5_00-FA-12-34-56-78_42_w2of3_level1.txt", sharded.RecordName(keyspace.StageCurated))

	otherSeed := testIdentity
	otherSeed.Seed = 43
	assert.NotEqual(t, testIdentity.RecordName(keyspace.StageFullSpace), otherSeed.RecordName(keyspace.StageFullSpace))
}

func TestCodec(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00\n", string(encode(0)))
	assert.Equal(t, "0c\n", string(encode(12)))
	assert.Equal(t, "ffffffff\n2a\n", string(encode(ProgressDone, 42)))

	values, err := decode([]byte("1A2B\r\n2a\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x1A2B, 42}, values)

	for _, bad := range []string{"", "\n", "zz\n", "01\n\n02\n", "123456789\n"} {
		_, err := decode([]byte(bad))
		assert.ErrorIs(t, err, ErrMalformed, "%q", bad)
	}
}

// storeFactories lets every behavioral test run against both backends.
func storeFactories(t *testing.T) map[string]func() *Records {
	return map[string]func() *Records{
		"file": func() *Records {
			s, err := NewFileStore(t.TempDir(), nil)
			require.NoError(t, err)
			return s
		},
		"blob": func() *Records {
			bucket := memblob.OpenBucket(nil)
			t.Cleanup(func() { bucket.Close() })
			return NewBlobStore(bucket, "mem://", nil)
		},
	}
}

func TestStoreReadAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()

			idx, err := s.ReadIndex(ctx, testIdentity, keyspace.StageCurated)
			require.NoError(t, err)
			assert.Equal(t, ProgressNone, idx)

			_, _, ok, err := s.ReadIndexAndSeed(ctx, testIdentity, keyspace.StageFullSpace)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreWriteRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()

			require.NoError(t, s.Write(ctx, testIdentity, keyspace.StageDictionary, 300))
			idx, err := s.ReadIndex(ctx, testIdentity, keyspace.StageDictionary)
			require.NoError(t, err)
			assert.Equal(t, uint32(300), idx)

			require.NoError(t, s.Write(ctx, testIdentity, keyspace.StageDictionary, ProgressDone))
			idx, err = s.ReadIndex(ctx, testIdentity, keyspace.StageDictionary)
			require.NoError(t, err)
			assert.Equal(t, ProgressDone, idx)

			require.NoError(t, s.WriteWithSeed(ctx, testIdentity, keyspace.StageFullSpace, 1000, 7))
			i, seed, ok, err := s.ReadIndexAndSeed(ctx, testIdentity, keyspace.StageFullSpace)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint32(1000), i)
			assert.Equal(t, uint32(7), seed)

			// A single-value record is not an index-and-seed record.
			_, _, ok, err = s.ReadIndexAndSeed(ctx, testIdentity, keyspace.StageDictionary)
			require.NoError(t, err)
			assert.False(t, ok)

			recs, err := s.List(ctx, testIdentity)
			require.NoError(t, err)
			assert.Equal(t, []Record{
				{Stage: keyspace.StageDictionary, Index: ProgressDone},
				{Stage: keyspace.StageFullSpace, Index: 1000, Seed: 7, HasSeed: true},
			}, recs)
			assert.True(t, recs[0].Done())
			assert.False(t, recs[1].Done())
		})
	}
}

func TestStoreIdentitiesDoNotCollide(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()

			w0 := testIdentity
			w0.Shard = keyspace.Shard{MaxWorkers: 2, WorkerIndex: 0}
			w1 := testIdentity
			w1.Shard = keyspace.Shard{MaxWorkers: 2, WorkerIndex: 1}

			require.NoError(t, s.Write(ctx, w0, keyspace.StageDictionary, 10))
			require.NoError(t, s.Write(ctx, w1, keyspace.StageDictionary, 11))
			require.NoError(t, s.Write(ctx, testIdentity, keyspace.StageDictionary, 12))

			for id, want := range map[string]uint32{"w0": 10, "w1": 11, "single": 12} {
				ident := map[string]Identity{"w0": w0, "w1": w1, "single": testIdentity}[id]
				got, err := s.ReadIndex(ctx, ident, keyspace.StageDictionary)
				require.NoError(t, err)
				assert.Equal(t, want, got, id)
			}

			recs, err := s.List(ctx, testIdentity)
			require.NoError(t, err)
			assert.Len(t, recs, 1)
		})
	}
}

func TestFileStoreMalformedIsTreatedAsNone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	path := filepath.Join(dir, testIdentity.RecordName(keyspace.StageFullSpace))
	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o600))

	idx, err := s.ReadIndex(ctx, testIdentity, keyspace.StageFullSpace)
	require.NoError(t, err)
	assert.Equal(t, ProgressNone, idx)

	_, _, ok, err := s.ReadIndexAndSeed(ctx, testIdentity, keyspace.StageFullSpace)
	require.NoError(t, err)
	assert.False(t, ok)

	// Three lines is the wrong field count for an index-and-seed record.
	require.NoError(t, os.WriteFile(path, []byte("01\n02\n03\n"), 0o600))
	_, _, ok, err = s.ReadIndexAndSeed(ctx, testIdentity, keyspace.StageFullSpace)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreLayout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, s.WriteWithSeed(ctx, testIdentity, keyspace.StageFullSpace, 0x1f4, 42))

	data, err := os.ReadFile(filepath.Join(dir, "1.1.5_00-FA-12-34-56-78_42_level3.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1f4\n2a\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files may remain after a write")
}

func TestOpenPicksBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	s, err := Open(ctx, dir, nil)
	require.NoError(t, err)
	assert.IsType(t, &fileBackend{}, s.backend)
	assert.Equal(t, dir, s.Location())
	require.NoError(t, s.Close())

	m, err := Open(ctx, "mem://", nil)
	require.NoError(t, err)
	assert.IsType(t, &blobBackend{}, m.backend)
	assert.Equal(t, "mem://", m.Location())
	require.NoError(t, m.Close())
}
