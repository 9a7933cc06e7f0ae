package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceKNX/internal/config"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

func validConfig() config.Config {
	return config.Config{
		Target:     "1.1.5",
		Connection: "Type=Simulator Key=DEADBEEF",
		Stages:     config.StagesConfig{Curated: true, Dictionary: true, FullSpace: true},
		KeyFile:    "keys.txt",
		Seed:       42,
		Workers:    config.WorkersConfig{Max: 1},
		Checkpoint: config.CheckpointConfig{Location: ".", EveryFullSpace: 10, EveryDictionary: 100},
	}
}

// chdir moves into an empty directory so no stray knxunlock.yaml is found.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.Target)
	assert.True(t, cfg.Stages.Curated)
	assert.True(t, cfg.Stages.Dictionary)
	assert.True(t, cfg.Stages.FullSpace)
	assert.Equal(t, "keys.txt", cfg.KeyFile)
	assert.Equal(t, uint32(42), cfg.Seed)
	assert.Equal(t, uint32(1), cfg.Workers.Max)
	assert.Equal(t, ".", cfg.Checkpoint.Location)
	assert.Equal(t, 10, cfg.Checkpoint.EveryFullSpace)
	assert.Equal(t, 100, cfg.Checkpoint.EveryDictionary)
	assert.Equal(t, time.Second, cfg.RetryInterval)
	assert.True(t, cfg.LockCheck)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9464", cfg.Metrics.Address)
}

func TestLoadFile(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target: 1.1.5
connection: Type=Usb VendorId=0E77 ProductId=0104
stages:
  curated: false
seed: 7
workers:
  max: 4
  index: 3
retry_interval: 250ms
checkpoint:
  location: mem://
logging:
  format: json
`), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "1.1.5", cfg.Target)
	assert.False(t, cfg.Stages.Curated)
	assert.True(t, cfg.Stages.Dictionary)
	assert.Equal(t, uint32(7), cfg.Seed)
	assert.Equal(t, keyspace.Shard{MaxWorkers: 4, WorkerIndex: 3}, cfg.Shard())
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, "mem://", cfg.Checkpoint.Location)
	assert.Equal(t, "json", cfg.Logging.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoadDiscoversFileInWorkingDirectory(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "knxunlock.yaml"), []byte("target: 2.3.4\n"), 0o644))

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "2.3.4", cfg.Target)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	chdir(t)
	_, err := config.Load("/nonexistent/knxunlock.yaml", nil)
	require.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t)
	t.Setenv("KNXUNLOCK_TARGET", "1.2.3")
	t.Setenv("KNXUNLOCK_WORKERS_MAX", "3")
	t.Setenv("KNXUNLOCK_STAGES_FULLSPACE", "false")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", cfg.Target)
	assert.Equal(t, uint32(3), cfg.Workers.Max)
	assert.False(t, cfg.Stages.FullSpace)
}

func TestLoadFlagsOverrideEnvironment(t *testing.T) {
	chdir(t)
	t.Setenv("KNXUNLOCK_SEED", "9")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.String("target", "", "")
	fs.Uint32("seed", 42, "")
	fs.Bool("curated", true, "")
	require.NoError(t, fs.Parse([]string{"--target", "1.1.9", "--seed", "100", "--curated=false"}))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "1.1.9", cfg.Target)
	assert.Equal(t, uint32(100), cfg.Seed)
	assert.False(t, cfg.Stages.Curated)
}

func TestLoadUnchangedFlagKeepsEnvironment(t *testing.T) {
	chdir(t)
	t.Setenv("KNXUNLOCK_SEED", "9")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.Uint32("seed", 42, "")
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), cfg.Seed)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"valid", func(*config.Config) {}, nil},
		{"no target", func(c *config.Config) { c.Target = "" }, config.ErrNoTarget},
		{"no connection", func(c *config.Config) { c.Connection = "" }, config.ErrNoConnection},
		{"no stage", func(c *config.Config) { c.Stages = config.StagesConfig{} }, config.ErrNoStage},
		{"bad shard", func(c *config.Config) { c.Workers = config.WorkersConfig{Max: 2, Index: 2} }, keyspace.ErrInvalidShard},
		{"negative cadence", func(c *config.Config) { c.Checkpoint.EveryFullSpace = -1 }, config.ErrInvalidCadence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRejectsMalformedValues(t *testing.T) {
	cfg := validConfig()
	cfg.Target = "1.1"
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Connection = "VendorId=0E77"
	require.Error(t, cfg.Validate())
}

func TestValidateTargetIgnoresStages(t *testing.T) {
	cfg := validConfig()
	cfg.Stages = config.StagesConfig{}
	require.NoError(t, cfg.ValidateTarget())
}

func TestToSearch(t *testing.T) {
	cfg := validConfig()
	cfg.Stages.Curated = false
	cfg.Seed = 1234
	cfg.Workers = config.WorkersConfig{Max: 3, Index: 1}
	cfg.RetryInterval = 5 * time.Millisecond

	sc := cfg.ToSearch()
	assert.False(t, sc.Curated)
	assert.True(t, sc.Dictionary)
	assert.Equal(t, uint32(1234), sc.Seed)
	assert.Equal(t, keyspace.Shard{MaxWorkers: 3, WorkerIndex: 1}, sc.Shard)
	assert.Equal(t, 10, sc.FullSpaceEvery)
	assert.Equal(t, 100, sc.DictionaryEvery)
	assert.Equal(t, 5*time.Millisecond, sc.RetryInterval)
	assert.Equal(t, "keys.txt", sc.KeyFile)
}

func TestYAML(t *testing.T) {
	cfg := validConfig()
	cfg.RetryInterval = 1500 * time.Millisecond

	out, err := cfg.YAML()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "1.1.5", doc["target"])
	assert.Equal(t, "1.5s", doc["retry_interval"])
	assert.Equal(t, 42, doc["seed"])
	stages, ok := doc["stages"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, stages["fullspace"])
}
