package search

import (
	"log/slog"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

// StageStatus is how a stage ended.
type StageStatus string

const (
	StageSkipped   StageStatus = "skipped" // already exhausted in an earlier run
	StageExhausted StageStatus = "exhausted"
	StageFound     StageStatus = "found"
	StageCancelled StageStatus = "cancelled"
	StageFailed    StageStatus = "failed"
)

// Observer receives search events. Implementations must not block.
type Observer interface {
	StageStarted(stage keyspace.Stage, resumeFrom uint64)
	StageFinished(stage keyspace.Stage, status StageStatus)
	Trial(stage keyspace.Stage, index uint64, out Outcome)
	Transient(key uint32, err error)
	CheckpointSaved(stage keyspace.Stage, index uint32)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StageStarted(keyspace.Stage, uint64) {}
func (NopObserver) StageFinished(keyspace.Stage, StageStatus) {}
func (NopObserver) Trial(keyspace.Stage, uint64, Outcome) {}
func (NopObserver) Transient(uint32, error) {}
func (NopObserver) CheckpointSaved(keyspace.Stage, uint32) {}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) StageStarted(stage keyspace.Stage, resumeFrom uint64) {
	for _, ob := range o {
		ob.StageStarted(stage, resumeFrom)
	}
}

func (o Observers) StageFinished(stage keyspace.Stage, status StageStatus) {
	for _, ob := range o {
		ob.StageFinished(stage, status)
	}
}

func (o Observers) Trial(stage keyspace.Stage, index uint64, out Outcome) {
	for _, ob := range o {
		ob.Trial(stage, index, out)
	}
}

func (o Observers) Transient(key uint32, err error) {
	for _, ob := range o {
		ob.Transient(key, err)
	}
}

func (o Observers) CheckpointSaved(stage keyspace.Stage, index uint32) {
	for _, ob := range o {
		ob.CheckpointSaved(stage, index)
	}
}

// LogObserver writes search events to a logger at debug level. Stage
// boundaries are logged at info by the engine itself.
type LogObserver struct {
	log *slog.Logger
}

// NewLogObserver returns an observer logging to l, or to the default logger
// when l is nil.
func NewLogObserver(l *slog.Logger) *LogObserver {
	if l == nil {
		l = slog.Default()
	}
	return &LogObserver{log: l}
}

func (o *LogObserver) StageStarted(stage keyspace.Stage, resumeFrom uint64) {
	o.log.Debug("stage started", "stage", stage.String(), "resume_from", resumeFrom)
}

func (o *LogObserver) StageFinished(stage keyspace.Stage, status StageStatus) {
	o.log.Debug("stage ended", "stage", stage.String(), "status", string(status))
}

func (o *LogObserver) Trial(stage keyspace.Stage, index uint64, out Outcome) {
	o.log.Debug("key tried", "stage", stage.String(), "index", index,
		"key", keyspace.FormatKey(out.Key), "level", out.Level, "accepted", out.Accepted)
}

func (o *LogObserver) Transient(key uint32, err error) {
	o.log.Debug("transient failure", "key", keyspace.FormatKey(key), "error", err)
}

func (o *LogObserver) CheckpointSaved(stage keyspace.Stage, index uint32) {
	o.log.Debug("checkpoint saved", "stage", stage.String(), "index", index)
}
