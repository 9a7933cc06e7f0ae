package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/checkpoint"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyfile"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

// Progress reports the position of the running stage.
type Progress struct {
	Stage keyspace.Stage
	Index uint64 // logical index of the candidate just tried
	Total uint64 // indices in the stage, zero when unknown
	Tried uint64 // trials submitted by this worker in this stage
	Key   uint32
	Done  bool // stage finished
}

// StageReport summarizes one stage of a run.
type StageReport struct {
	Stage      keyspace.Stage
	Status     StageStatus
	ResumeFrom uint64
	Tried      uint64
}

// Result is the outcome of Run. Discovery is nil when every enabled stage was
// exhausted without an accepted key.
type Result struct {
	Discovery *Discovery
	Stages    []StageReport
	Tried     uint64
	Elapsed   time.Duration
}

// Engine drives the enabled stages in order against one device.
type Engine struct {
	cfg      *Config
	store    checkpoint.Store
	id       checkpoint.Identity
	exec     *Executor
	observer Observer
	progress chan<- Progress
	log      *slog.Logger

	// spaceSize bounds the full-space stage; zero means every 32-bit index.
	spaceSize uint64
}

// NewEngine binds a validated configuration to a checkpoint store and an
// executor. The identity's seed and shard are taken from cfg so checkpoint
// names always match the run. progress may be nil.
func NewEngine(cfg *Config, store checkpoint.Store, id checkpoint.Identity, exec *Executor, progress chan<- Progress) *Engine {
	id.Seed = cfg.Seed
	id.Shard = cfg.Shard

	observer := exec.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	log := exec.Log
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		cfg:      cfg,
		store:    store,
		id:       id,
		exec:     exec,
		observer: observer,
		progress: progress,
		log:      log.With("device", id.Name()),
	}
}

// Identity returns the checkpoint identity in use.
func (e *Engine) Identity() checkpoint.Identity {
	return e.id
}

// Run executes the enabled stages. A discovery ends the run immediately. On
// cancellation the last periodic checkpoint stands and ctx.Err() is returned
// together with the partial result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	defer func() { res.Elapsed = time.Since(start) }()

	type stageFunc func(context.Context, *StageReport) (*Discovery, error)
	stages := map[keyspace.Stage]stageFunc{
		keyspace.StageCurated:    e.runCurated,
		keyspace.StageDictionary: e.runDictionary,
		keyspace.StageFullSpace:  e.runFullSpace,
	}

	for _, stage := range e.cfg.Stages() {
		rep := StageReport{Stage: stage}
		d, err := stages[stage](ctx, &rep)
		res.Tried += rep.Tried

		switch {
		case d != nil:
			rep.Status = StageFound
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			rep.Status = StageCancelled
		case err != nil:
			rep.Status = StageFailed
		case rep.Status == "":
			rep.Status = StageExhausted
		}
		res.Stages = append(res.Stages, rep)
		e.observer.StageFinished(stage, rep.Status)

		if err != nil {
			return res, err
		}
		if d != nil {
			res.Discovery = d
			e.log.Info("key found", "stage", stage.String(), "key", keyspace.FormatKey(d.Key), "level", d.Level)
			return res, nil
		}
	}
	return res, nil
}

func (e *Engine) fullSpaceSize() uint64 {
	if e.spaceSize == 0 || e.spaceSize > keyspace.SpaceSize {
		return keyspace.SpaceSize
	}
	return e.spaceSize
}

func (e *Engine) publish(p Progress) {
	if e.progress == nil {
		return
	}
	select {
	case e.progress <- p:
	default:
	}
}

// try submits one candidate and reports it.
func (e *Engine) try(ctx context.Context, rep *StageReport, c keyspace.Candidate, total uint64) (*Discovery, error) {
	out, err := e.exec.Submit(ctx, c.Key)
	if err != nil {
		return nil, err
	}
	rep.Tried++
	e.observer.Trial(c.Stage, c.Index, out)
	e.publish(Progress{Stage: c.Stage, Index: c.Index, Total: total, Tried: rep.Tried, Key: c.Key})

	if out.Accepted {
		return discover(out, c), nil
	}
	return nil, nil
}

func (e *Engine) save(ctx context.Context, stage keyspace.Stage, index uint32) error {
	if err := e.store.Write(ctx, e.id, stage, index); err != nil {
		return err
	}
	e.observer.CheckpointSaved(stage, index)
	return nil
}

func (e *Engine) saveWithSeed(ctx context.Context, stage keyspace.Stage, index, seed uint32) error {
	if err := e.store.WriteWithSeed(ctx, e.id, stage, index, seed); err != nil {
		return err
	}
	e.observer.CheckpointSaved(stage, index)
	return nil
}

func (e *Engine) finish(rep *StageReport, total uint64) {
	e.publish(Progress{Stage: rep.Stage, Index: total, Total: total, Tried: rep.Tried, Done: true})
	e.log.Info("stage finished", "stage", rep.Stage.String(), "tried", rep.Tried)
}

// runCurated tries the fixed key list. It keeps only a done flag.
func (e *Engine) runCurated(ctx context.Context, rep *StageReport) (*Discovery, error) {
	stage := rep.Stage
	idx, err := e.store.ReadIndex(ctx, e.id, stage)
	if err != nil {
		return nil, err
	}
	if idx == checkpoint.ProgressDone {
		e.log.Info("stage already exhausted, skipping", "stage", stage.String())
		rep.Status = StageSkipped
		return nil, nil
	}

	keys := keyspace.CuratedKeys()
	total := uint64(len(keys))
	e.observer.StageStarted(stage, 0)
	e.log.Info("trying curated keys", "count", total)

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := e.try(ctx, rep, keyspace.Candidate{Key: key, Stage: stage, Index: uint64(i)}, total)
		if d != nil || err != nil {
			return d, err
		}
	}

	if err := e.save(ctx, stage, checkpoint.ProgressDone); err != nil {
		return nil, err
	}
	e.finish(rep, total)
	return nil, nil
}

// runDictionary walks the key file. The checkpoint is the 1-based number of
// the last line handled; blank lines count but are not submitted.
func (e *Engine) runDictionary(ctx context.Context, rep *StageReport) (*Discovery, error) {
	stage := rep.Stage
	skip, err := e.store.ReadIndex(ctx, e.id, stage)
	if err != nil {
		return nil, err
	}
	if skip == checkpoint.ProgressDone {
		e.log.Info("stage already exhausted, skipping", "stage", stage.String())
		rep.Status = StageSkipped
		return nil, nil
	}

	stats, err := keyfile.Inspect(e.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("search: key file %s: %w", e.cfg.KeyFile, err)
	}
	f, err := keyfile.Open(e.cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rep.ResumeFrom = uint64(skip)
	e.observer.StageStarted(stage, rep.ResumeFrom)
	e.log.Info("trying dictionary keys", "file", e.cfg.KeyFile, "lines", stats.Lines, "resume_after", skip)

	var (
		found     *Discovery
		runErr    error
		sinceSave int
	)
	scanErr := keyfile.Scan(f, func(line keyfile.Line) bool {
		n := line.Number
		if n <= uint64(skip) || !e.cfg.Shard.Owns(n) || line.Blank {
			return true
		}
		if runErr = ctx.Err(); runErr != nil {
			return false
		}

		found, runErr = e.try(ctx, rep, keyspace.Candidate{Key: line.Key, Stage: stage, Index: n}, stats.Lines)
		if found != nil || runErr != nil {
			return false
		}

		sinceSave++
		if sinceSave >= e.cfg.DictionaryEvery {
			sinceSave = 0
			if runErr = e.save(ctx, stage, uint32(n)); runErr != nil {
				return false
			}
		}
		return true
	})
	if found != nil || runErr != nil {
		return found, runErr
	}
	if scanErr != nil {
		return nil, fmt.Errorf("search: key file %s: %w", e.cfg.KeyFile, scanErr)
	}

	if err := e.save(ctx, stage, checkpoint.ProgressDone); err != nil {
		return nil, err
	}
	e.finish(rep, stats.Lines)
	return nil, nil
}

// runFullSpace walks every logical index of the generator. The checkpoint
// holds the last index tried and the seed in effect; a resume reseeds to that
// seed and continues at that index.
func (e *Engine) runFullSpace(ctx context.Context, rep *StageReport) (*Discovery, error) {
	stage := rep.Stage
	last, storedSeed, ok, err := e.store.ReadIndexAndSeed(ctx, e.id, stage)
	if err != nil {
		return nil, err
	}

	seed := e.cfg.Seed
	var from uint64
	if ok {
		if last == checkpoint.ProgressDone {
			e.log.Info("stage already exhausted, skipping", "stage", stage.String())
			rep.Status = StageSkipped
			return nil, nil
		}
		if storedSeed != seed {
			e.log.Warn("resuming with checkpoint seed", "configured", seed, "checkpoint", storedSeed)
		}
		seed = storedSeed
		from = uint64(last)
	}

	total := e.fullSpaceSize()
	gen := keyspace.NewGenerator(seed)
	gen.Seek(from)

	rep.ResumeFrom = from
	e.observer.StageStarted(stage, from)
	e.log.Info("trying full key space", "seed", seed, "resume_at", from, "shard", e.cfg.Shard.String())

	sinceSave := 0
	for i := from; i < total; i++ {
		key := gen.Next()
		if !e.cfg.Shard.Owns(i) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d, err := e.try(ctx, rep, keyspace.Candidate{Key: key, Stage: stage, Index: i}, total)
		if d != nil || err != nil {
			return d, err
		}

		sinceSave++
		if sinceSave >= e.cfg.FullSpaceEvery {
			sinceSave = 0
			if err := e.saveWithSeed(ctx, stage, uint32(i), seed); err != nil {
				return nil, err
			}
		}
	}

	if err := e.saveWithSeed(ctx, stage, checkpoint.ProgressDone, seed); err != nil {
		return nil, err
	}
	e.finish(rep, total)
	return nil, nil
}
