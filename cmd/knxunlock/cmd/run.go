package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceKNX/internal/console"
	"github.com/OpenTraceLab/OpenTraceKNX/internal/logging"
	"github.com/OpenTraceLab/OpenTraceKNX/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/checkpoint"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyfile"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/search"
)

var noProgress bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search for the authorization key of a device",
	Long: `Connect to the target device and try candidate keys until one is accepted.

The search runs three stages in order, each of which can be switched off:
  1. curated     a short list of default keys
  2. dictionary  keys from --keyfile, one hex key per line (.gz, .zst, .lz4 accepted)
  3. fullspace   all 2^32 keys in an order fixed by --seed

Checkpoints are written to --checkpoint and a rerun with the same target and
seed continues from them. To share the work, start --max-workers processes with
the same seed and distinct --worker-index values.

Examples:
  knxunlock run -t 1.1.5 -c "Type=Usb VendorId=0E77 ProductId=0104"
  knxunlock run -t 1.1.5 -c "..." --curated=false --dictionary=false -s 7
  knxunlock run -t 1.1.5 -c "..." --checkpoint gs://bucket/knx --metrics`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addTargetFlags(runCmd)
	addIdentityFlags(runCmd)

	f := runCmd.Flags()
	f.Bool("curated", true, "run the curated key stage")
	f.Bool("dictionary", true, "run the dictionary stage")
	f.Bool("fullspace", true, "run the full key space stage")
	f.StringP("keyfile", "k", keyfile.DefaultName, "dictionary key file")
	f.Int("every-fullspace", search.DefaultFullSpaceEvery, "full space checkpoint cadence, in trials")
	f.Int("every-dictionary", search.DefaultDictionaryEvery, "dictionary checkpoint cadence, in trials")
	f.Duration("retry-interval", search.DefaultRetryInterval, "wait before retrying a device that did not answer")
	f.Bool("lock-check", true, "try key FFFFFFFF before searching")
	f.Bool("metrics", false, "serve Prometheus metrics")
	f.String("metrics-address", ":9464", "metrics listen address")
	f.BoolVar(&noProgress, "no-progress", false, "do not draw progress bars")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	sc := cfg.ToSearch()
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, log = logging.WithRun(ctx, log)

	sess, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	exec := search.NewExecutor(sess.dev, logging.Component(log, "executor"))
	exec.RetryInterval = sc.RetryInterval

	observers := search.Observers{search.NewLogObserver(logging.Component(log, "search"))}
	if cfg.Metrics.Enabled {
		m := metrics.New(metrics.DefaultNamespace)
		observers = append(observers, m)
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Address); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		log.Info("serving metrics", "address", cfg.Metrics.Address)
	}
	exec.Observer = observers

	printer := console.NewPrinter(cmd.OutOrStdout())

	id, err := search.Identify(ctx, exec, sc)
	if err != nil {
		return err
	}
	log.Info("device identified", "identity", id.Name())

	if sc.LockCheck {
		d, err := exec.CheckLocked(ctx)
		if err != nil {
			return err
		}
		if d != nil {
			printer.Discovery(id, d, nil)
			return nil
		}
	}

	store, err := checkpoint.Open(ctx, cfg.Checkpoint.Location, log)
	if err != nil {
		return fmt.Errorf("open checkpoints: %w", err)
	}
	defer store.Close()
	log.Info("using checkpoints", "location", store.Location(), "identity", id.Name())

	res, runErr := runWithProgress(ctx, cmd, sc, store, id, exec)
	if res == nil {
		return runErr
	}

	if res.Discovery != nil {
		printer.Discovery(id, res.Discovery, res)
		return nil
	}
	printer.Summary(res)
	if errors.Is(runErr, context.Canceled) {
		return errors.New("interrupted, progress saved")
	}
	return runErr
}

// runWithProgress runs the engine, drawing progress bars unless disabled.
func runWithProgress(ctx context.Context, cmd *cobra.Command, sc *search.Config, store checkpoint.Store, id checkpoint.Identity, exec *search.Executor) (*search.Result, error) {
	if noProgress {
		return search.NewEngine(sc, store, id, exec, nil).Run(ctx)
	}

	ch := make(chan search.Progress, 64)
	view := console.NewProgressView(cmd.ErrOrStderr())
	done := make(chan struct{})
	go func() {
		view.Run(ch)
		close(done)
	}()

	res, err := search.NewEngine(sc, store, id, exec, ch).Run(ctx)
	close(ch)
	<-done
	return res, err
}
