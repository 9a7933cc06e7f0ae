package search

import (
	"errors"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyfile"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

// Run defaults.
const (
	DefaultSeed            uint32 = 42
	DefaultFullSpaceEvery         = 10
	DefaultDictionaryEvery        = 100
	DefaultRetryInterval          = time.Second
	DefaultBenchmarkTries         = 200
	DefaultBenchmarkKey    uint32 = 0x42424242
	LockProbeKey           uint32 = 0xFFFFFFFF
)

// ErrNoStage is returned when a run enables no stage.
var ErrNoStage = errors.New("search: no stage enabled")

// Config controls a search run.
type Config struct {
	// Stage selection
	Curated    bool
	Dictionary bool
	FullSpace  bool

	KeyFile string // dictionary source (default keys.txt)
	Seed    uint32 // full-space seed, shared by all workers
	Shard   keyspace.Shard

	// Checkpoint cadence, in trials submitted by this worker.
	FullSpaceEvery  int
	DictionaryEvery int

	RetryInterval time.Duration // wait between transient failures

	// LockCheck submits LockProbeKey once before the stages.
	LockCheck bool
}

// DefaultConfig returns a Config with every stage enabled and default values.
func DefaultConfig() *Config {
	return &Config{
		Curated:         true,
		Dictionary:      true,
		FullSpace:       true,
		KeyFile:         keyfile.DefaultName,
		Seed:            DefaultSeed,
		Shard:           keyspace.SingleWorker,
		FullSpaceEvery:  DefaultFullSpaceEvery,
		DictionaryEvery: DefaultDictionaryEvery,
		RetryInterval:   DefaultRetryInterval,
		LockCheck:       true,
	}
}

// Validate checks the configuration and fills zero cadences with defaults.
// An enabled dictionary stage requires a readable key file holding at least
// one key, so a bad file is reported before the first trial.
func (c *Config) Validate() error {
	if !c.Curated && !c.Dictionary && !c.FullSpace {
		return ErrNoStage
	}
	if err := c.Shard.Validate(); err != nil {
		return err
	}

	if c.FullSpaceEvery < 1 {
		c.FullSpaceEvery = DefaultFullSpaceEvery
	}
	if c.DictionaryEvery < 1 {
		c.DictionaryEvery = DefaultDictionaryEvery
	}
	if c.RetryInterval < 0 {
		c.RetryInterval = 0
	}

	if c.Dictionary {
		if c.KeyFile == "" {
			c.KeyFile = keyfile.DefaultName
		}
		if _, err := keyfile.Inspect(c.KeyFile); err != nil {
			return fmt.Errorf("search: key file %s: %w", c.KeyFile, err)
		}
	}
	return nil
}

// Stages returns the enabled stages in run order.
func (c *Config) Stages() []keyspace.Stage {
	var out []keyspace.Stage
	if c.Curated {
		out = append(out, keyspace.StageCurated)
	}
	if c.Dictionary {
		out = append(out, keyspace.StageDictionary)
	}
	if c.FullSpace {
		out = append(out, keyspace.StageFullSpace)
	}
	return out
}
