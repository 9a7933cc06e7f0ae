package keyspace

import (
	"errors"
	"fmt"
)

// ErrInvalidShard is returned when a worker index does not fit the worker
// count.
var ErrInvalidShard = errors.New("keyspace: worker index must be smaller than worker count")

// Shard identifies one of several cooperating worker processes. Every worker
// walks the same deterministic sequence (same seed) and only submits the
// logical indices it owns, so the workers together cover each index once.
type Shard struct {
	MaxWorkers  uint32
	WorkerIndex uint32
}

// SingleWorker is the degenerate shard that owns every index.
var SingleWorker = Shard{MaxWorkers: 1}

// Enabled reports whether the shard actually filters indices.
func (s Shard) Enabled() bool {
	return s.MaxWorkers > 1
}

// Validate checks WorkerIndex < MaxWorkers when sharding is enabled.
func (s Shard) Validate() error {
	if s.Enabled() && s.WorkerIndex >= s.MaxWorkers {
		return fmt.Errorf("%w: index %d, count %d", ErrInvalidShard, s.WorkerIndex, s.MaxWorkers)
	}
	return nil
}

// Owns reports whether the logical index belongs to this worker.
func (s Shard) Owns(index uint64) bool {
	if !s.Enabled() {
		return true
	}
	return index%uint64(s.MaxWorkers) == uint64(s.WorkerIndex)
}

// Suffix returns the name fragment that keeps checkpoint records of
// different workers apart. It is empty for a single worker.
func (s Shard) Suffix() string {
	if !s.Enabled() {
		return ""
	}
	return fmt.Sprintf("_w%dof%d", s.WorkerIndex, s.MaxWorkers)
}

// String implements fmt.Stringer.
func (s Shard) String() string {
	if !s.Enabled() {
		return "single worker"
	}
	return fmt.Sprintf("worker %d of %d", s.WorkerIndex, s.MaxWorkers)
}
