package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceKNX/internal/config"
	"github.com/OpenTraceLab/OpenTraceKNX/internal/logging"
)

// Version is the release of the binary.
var Version = "0.9.0"

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "knxunlock",
	Short: "Recover the authorization key of a KNX device",
	Long: `knxunlock searches for the 32-bit authorization key of a KNX device in three
stages: a list of common default keys, a dictionary file, and the full key space
in a seeded pseudo-random order. Progress is checkpointed, so an interrupted run
resumes where it stopped, and the work can be split over several processes.

Examples:
  knxunlock interfaces                                          # List bus interfaces
  knxunlock run -t 1.1.5 -c "Type=Usb VendorId=0E77 ProductId=0104"
  knxunlock run -t 1.1.5 -c "Type=Simulator Key=DEADBEEF" --curated=false
  knxunlock run -t 1.1.5 -c "..." --max-workers 4 --worker-index 2
  knxunlock benchmark -t 1.1.5 -c "..."                         # Measure keys per second
  knxunlock keygen 3A7C -o keys.txt                             # Derived dictionary`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default knxunlock.yaml in . or $HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")
}

// addTargetFlags registers the flags that select the device.
func addTargetFlags(c *cobra.Command) {
	c.Flags().StringP("target", "t", "", "individual address of the device (e.g. 1.1.5)")
	c.Flags().StringP("connection", "c", "", `connection string (e.g. "Type=Usb VendorId=0E77 ProductId=0104")`)
}

// addIdentityFlags registers the flags that name checkpoints.
func addIdentityFlags(c *cobra.Command) {
	c.Flags().Uint32P("seed", "s", 42, "seed of the full key space order, shared by all workers")
	c.Flags().Uint32P("max-workers", "m", 1, "number of cooperating workers")
	c.Flags().Uint32P("worker-index", "i", 0, "index of this worker, below --max-workers")
	c.Flags().String("checkpoint", config.DefaultCheckpointLocation, "checkpoint directory or bucket URL (mem://, file://, gs://, s3://)")
}

// setup loads the configuration for c and installs the logger.
func setup(c *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile, c.Flags())
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, logging.Setup(cfg.Logging, c.ErrOrStderr()), nil
}
