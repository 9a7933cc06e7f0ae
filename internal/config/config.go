// Package config loads knxunlock settings from defaults, an optional YAML
// file, KNXUNLOCK_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceKNX/internal/logging"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/knx"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/search"
)

// Config is the top-level configuration of a run.
type Config struct {
	Target        string           `mapstructure:"target" yaml:"target"`
	Connection    string           `mapstructure:"connection" yaml:"connection"`
	Stages        StagesConfig     `mapstructure:"stages" yaml:"stages"`
	KeyFile       string           `mapstructure:"keyfile" yaml:"keyfile"`
	Seed          uint32           `mapstructure:"seed" yaml:"seed"`
	Workers       WorkersConfig    `mapstructure:"workers" yaml:"workers"`
	Checkpoint    CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	RetryInterval time.Duration    `mapstructure:"retry_interval" yaml:"-"`
	LockCheck     bool             `mapstructure:"lock_check" yaml:"lock_check"`
	Logging       logging.Config   `mapstructure:"logging" yaml:"logging"`
	Metrics       MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// StagesConfig selects the search stages.
type StagesConfig struct {
	Curated    bool `mapstructure:"curated" yaml:"curated"`
	Dictionary bool `mapstructure:"dictionary" yaml:"dictionary"`
	FullSpace  bool `mapstructure:"fullspace" yaml:"fullspace"`
}

// WorkersConfig describes this process's share of the work.
type WorkersConfig struct {
	Max   uint32 `mapstructure:"max" yaml:"max"`
	Index uint32 `mapstructure:"index" yaml:"index"`
}

// CheckpointConfig holds checkpoint settings. Location is a directory or a
// bucket URL.
type CheckpointConfig struct {
	Location        string `mapstructure:"location" yaml:"location"`
	EveryFullSpace  int    `mapstructure:"every_fullspace" yaml:"every_fullspace"`
	EveryDictionary int    `mapstructure:"every_dictionary" yaml:"every_dictionary"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// Sentinel errors for configuration validation.
var (
	// ErrNoTarget indicates no device address was given.
	ErrNoTarget = errors.New("target must be set")
	// ErrNoConnection indicates no connection string was given.
	ErrNoConnection = errors.New("connection must be set")
	// ErrNoStage indicates every stage is disabled.
	ErrNoStage = search.ErrNoStage
	// ErrInvalidCadence indicates a negative checkpoint cadence.
	ErrInvalidCadence = errors.New("checkpoint cadence must be non-negative")
)

// ValidateTarget checks the settings needed to reach the device.
func (c *Config) ValidateTarget() error {
	if c.Target == "" {
		return ErrNoTarget
	}
	if _, err := knx.ParseAddress(c.Target); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if c.Connection == "" {
		return ErrNoConnection
	}
	if _, err := knx.ParseConnectionString(c.Connection); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	return nil
}

// Validate checks Config invariants for a search run and returns the first
// error found.
func (c *Config) Validate() error {
	if err := c.ValidateTarget(); err != nil {
		return err
	}
	if !c.Stages.Curated && !c.Stages.Dictionary && !c.Stages.FullSpace {
		return ErrNoStage
	}
	if err := c.Shard().Validate(); err != nil {
		return err
	}
	if c.Checkpoint.EveryFullSpace < 0 || c.Checkpoint.EveryDictionary < 0 {
		return ErrInvalidCadence
	}
	return nil
}

// Shard returns the worker shard.
func (c *Config) Shard() keyspace.Shard {
	return keyspace.Shard{MaxWorkers: c.Workers.Max, WorkerIndex: c.Workers.Index}
}

// Address parses Target.
func (c *Config) Address() (knx.IndividualAddress, error) {
	return knx.ParseAddress(c.Target)
}

// ConnectorParameters parses Connection.
func (c *Config) ConnectorParameters() (knx.ConnectorParameters, error) {
	return knx.ParseConnectionString(c.Connection)
}

// ToSearch converts the settings into a search configuration. The result
// still needs search.Config.Validate, which checks the key file.
func (c *Config) ToSearch() *search.Config {
	sc := search.DefaultConfig()
	sc.Curated = c.Stages.Curated
	sc.Dictionary = c.Stages.Dictionary
	sc.FullSpace = c.Stages.FullSpace
	sc.KeyFile = c.KeyFile
	sc.Seed = c.Seed
	sc.Shard = c.Shard()
	sc.FullSpaceEvery = c.Checkpoint.EveryFullSpace
	sc.DictionaryEvery = c.Checkpoint.EveryDictionary
	sc.RetryInterval = c.RetryInterval
	sc.LockCheck = c.LockCheck
	return sc
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	view := struct {
		Config        `yaml:",inline"`
		RetryInterval string `yaml:"retry_interval"`
	}{
		Config:        *c,
		RetryInterval: c.RetryInterval.String(),
	}
	return yaml.Marshal(view)
}
