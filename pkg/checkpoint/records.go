package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

// errNotFound is returned by backends for absent records.
var errNotFound = errors.New("checkpoint: record not found")

// backend moves raw record bytes. Implementations must make put atomic: a
// reader sees either the previous record or the new one, never a mix.
type backend interface {
	get(ctx context.Context, name string) ([]byte, error)
	put(ctx context.Context, name string, data []byte) error
	list(ctx context.Context, prefix string) ([]string, error)
	location() string
	close() error
}

// Records implements Store on top of a byte backend.
type Records struct {
	backend backend
	log     *slog.Logger
}

func newRecords(b backend, log *slog.Logger) *Records {
	if log == nil {
		log = slog.Default()
	}
	return &Records{backend: b, log: log.With("component", "checkpoint", "location", b.location())}
}

// Location describes where records are kept.
func (r *Records) Location() string {
	return r.backend.location()
}

func (r *Records) read(ctx context.Context, id Identity, stage keyspace.Stage) ([]uint32, bool, error) {
	name := id.RecordName(stage)
	data, err := r.backend.get(ctx, name)
	if errors.Is(err, errNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read checkpoint %s: %w", name, err)
	}

	values, err := decode(data)
	if err != nil {
		r.log.Warn("ignoring malformed checkpoint", "record", name, "error", err)
		return nil, false, nil
	}
	return values, true, nil
}

// ReadIndex implements Store.
func (r *Records) ReadIndex(ctx context.Context, id Identity, stage keyspace.Stage) (uint32, error) {
	values, ok, err := r.read(ctx, id, stage)
	if err != nil || !ok {
		return ProgressNone, err
	}
	return values[0], nil
}

// ReadIndexAndSeed implements Store.
func (r *Records) ReadIndexAndSeed(ctx context.Context, id Identity, stage keyspace.Stage) (uint32, uint32, bool, error) {
	values, ok, err := r.read(ctx, id, stage)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	if len(values) != 2 {
		r.log.Warn("checkpoint does not hold index and seed",
			"record", id.RecordName(stage), "lines", len(values))
		return 0, 0, false, nil
	}
	return values[0], values[1], true, nil
}

// Write implements Store.
func (r *Records) Write(ctx context.Context, id Identity, stage keyspace.Stage, index uint32) error {
	return r.write(ctx, id, stage, index)
}

// WriteWithSeed implements Store.
func (r *Records) WriteWithSeed(ctx context.Context, id Identity, stage keyspace.Stage, index, seed uint32) error {
	return r.write(ctx, id, stage, index, seed)
}

func (r *Records) write(ctx context.Context, id Identity, stage keyspace.Stage, values ...uint32) error {
	name := id.RecordName(stage)
	if err := r.backend.put(ctx, name, encode(values...)); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", name, err)
	}
	if values[0] == ProgressDone {
		r.log.Info("stage exhausted, all keys tried", "stage", stage.String(), "record", name)
	} else {
		r.log.Debug("checkpoint saved", "stage", stage.String(), "index", values[0])
	}
	return nil
}

// List implements Store.
func (r *Records) List(ctx context.Context, id Identity) ([]Record, error) {
	prefix := id.Name() + "_level"
	names, err := r.backend.list(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var out []Record
	for _, name := range names {
		level, ok := strings.CutSuffix(strings.TrimPrefix(name, prefix), ".txt")
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(level, 10, 8)
		if err != nil {
			continue
		}
		stage := keyspace.Stage(n)
		values, found, err := r.read(ctx, id, stage)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		rec := Record{Stage: stage, Index: values[0]}
		if len(values) == 2 {
			rec.Seed, rec.HasSeed = values[1], true
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}

// Close implements Store.
func (r *Records) Close() error {
	return r.backend.close()
}
