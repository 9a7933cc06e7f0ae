package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyfile"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/search"
)

// configName is the config file name without extension.
const configName = "knxunlock"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix.
const envPrefix = "KNXUNLOCK"

// Defaults not owned by the search package.
const (
	DefaultCheckpointLocation = "."
	DefaultMetricsAddress     = ":9464"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// FlagKeys maps command-line flag names to configuration keys. Flags that a
// command does not define are skipped by Load.
var FlagKeys = map[string]string{
	"target":           "target",
	"connection":       "connection",
	"curated":          "stages.curated",
	"dictionary":       "stages.dictionary",
	"fullspace":        "stages.fullspace",
	"keyfile":          "keyfile",
	"seed":             "seed",
	"max-workers":      "workers.max",
	"worker-index":     "workers.index",
	"checkpoint":       "checkpoint.location",
	"every-fullspace":  "checkpoint.every_fullspace",
	"every-dictionary": "checkpoint.every_dictionary",
	"retry-interval":   "retry_interval",
	"lock-check":       "lock_check",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"metrics":          "metrics.enabled",
	"metrics-address":  "metrics.address",
}

// Load reads configuration from defaults, the config file, env vars and
// flags, in increasing precedence. If configPath is empty the file is
// searched as knxunlock.yaml in the working directory and $HOME; a missing
// file is not an error. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("target", "")
	v.SetDefault("connection", "")

	v.SetDefault("stages.curated", true)
	v.SetDefault("stages.dictionary", true)
	v.SetDefault("stages.fullspace", true)

	v.SetDefault("keyfile", keyfile.DefaultName)
	v.SetDefault("seed", search.DefaultSeed)

	v.SetDefault("workers.max", 1)
	v.SetDefault("workers.index", 0)

	v.SetDefault("checkpoint.location", DefaultCheckpointLocation)
	v.SetDefault("checkpoint.every_fullspace", search.DefaultFullSpaceEvery)
	v.SetDefault("checkpoint.every_dictionary", search.DefaultDictionaryEvery)

	v.SetDefault("retry_interval", search.DefaultRetryInterval)
	v.SetDefault("lock_check", true)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", DefaultMetricsAddress)
}
