package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceKNX/internal/console"
	"github.com/OpenTraceLab/OpenTraceKNX/internal/logging"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/search"
)

var (
	benchTries int
	benchKey   string
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Measure how many keys per second the device accepts",
	Long: `Submit the same key repeatedly and report the time per trial, then estimate
how long the full key space would take for this worker.

Examples:
  knxunlock benchmark -t 1.1.5 -c "Type=Usb VendorId=0E77 ProductId=0104"
  knxunlock benchmark -t 1.1.5 -c "..." -n 1000 --max-workers 8`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	addTargetFlags(benchmarkCmd)
	benchmarkCmd.Flags().IntVarP(&benchTries, "tries", "n", search.DefaultBenchmarkTries, "number of trials")
	benchmarkCmd.Flags().StringVar(&benchKey, "key", keyspace.FormatKey(search.DefaultBenchmarkKey), "key to submit")
	benchmarkCmd.Flags().Uint32P("max-workers", "m", 1, "workers sharing the full space, for the estimate")
	benchmarkCmd.Flags().Duration("retry-interval", search.DefaultRetryInterval, "wait before retrying a device that did not answer")
	benchmarkCmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateTarget(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	key, err := keyspace.ParseKey(benchKey)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sess, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	exec := search.NewExecutor(sess.dev, logging.Component(log, "executor"))
	exec.RetryInterval = cfg.RetryInterval

	var (
		tick func(int)
		view *console.ProgressView
	)
	if !noProgress {
		view = console.NewProgressView(cmd.ErrOrStderr())
		tracker := view.Track("benchmark", int64(benchTries))
		view.Start()
		tick = func(done int) { tracker.SetValue(int64(done)) }
	}

	res, err := search.Benchmark(ctx, exec, key, benchTries, tick)
	if view != nil {
		view.Stop()
	}
	if err != nil {
		return err
	}

	printer := console.NewPrinter(cmd.OutOrStdout())
	printer.Benchmark(key, res)
	printer.Estimate(res.Rate(), cfg.Shard())
	return nil
}
