// Package checkpoint persists per-stage search progress so an interrupted run
// resumes where it stopped.
//
// A record is namespaced by the device identity (bus address, serial number,
// seed), the worker shard and the stage number. Records are tiny text files:
// one line holding the last index, or two lines holding the index and the
// seed in effect, both as lower-case hex.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

// Progress sentinels.
const (
	ProgressNone uint32 = 0
	ProgressDone uint32 = 0xFFFFFFFF
)

// ErrMalformed marks a record that exists but cannot be decoded.
var ErrMalformed = errors.New("checkpoint: malformed record")

// Identity namespaces checkpoint records so different devices, seeds or
// workers never share progress.
type Identity struct {
	Address string
	Serial  []byte
	Seed    uint32
	Shard   keyspace.Shard
}

// Name returns address_SERIAL_seed plus the shard suffix when sharding.
func (id Identity) Name() string {
	return fmt.Sprintf("%s_%s_%d%s", id.Address, FormatSerial(id.Serial), id.Seed, id.Shard.Suffix())
}

// RecordName returns the record name for a stage.
func (id Identity) RecordName(stage keyspace.Stage) string {
	return fmt.Sprintf("%s_level%d.txt", id.Name(), uint8(stage))
}

// FormatSerial renders serial bytes as dash separated upper-case hex pairs
// (00-FA-12-34-56-78).
func FormatSerial(serial []byte) string {
	parts := make([]string, len(serial))
	for i, b := range serial {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, "-")
}

// Record is a decoded checkpoint.
type Record struct {
	Stage   keyspace.Stage
	Index   uint32
	Seed    uint32
	HasSeed bool
}

// Done reports whether the stage was exhausted.
func (r Record) Done() bool {
	return r.Index == ProgressDone
}

// Store reads and writes stage checkpoints.
type Store interface {
	// ReadIndex returns the last recorded index, or ProgressNone when there
	// is no record. A malformed record is logged and read as ProgressNone.
	ReadIndex(ctx context.Context, id Identity, stage keyspace.Stage) (uint32, error)

	// ReadIndexAndSeed returns the index and seed of a two-value record. ok
	// is false when the record is absent or is not a two-value record.
	ReadIndexAndSeed(ctx context.Context, id Identity, stage keyspace.Stage) (index, seed uint32, ok bool, err error)

	// Write persists a single-value record.
	Write(ctx context.Context, id Identity, stage keyspace.Stage, index uint32) error

	// WriteWithSeed persists a two-value record.
	WriteWithSeed(ctx context.Context, id Identity, stage keyspace.Stage, index, seed uint32) error

	// List returns every record stored for the identity, ordered by stage.
	List(ctx context.Context, id Identity) ([]Record, error)

	// Close releases backend resources.
	Close() error
}
