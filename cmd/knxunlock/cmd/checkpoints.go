package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceKNX/internal/console"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/checkpoint"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/search"
)

var checkpointSerial string

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Show the saved progress for a device",
	Long: `Print the checkpoints that a run with the same target, seed and worker
settings would resume from. The device serial is read from the device unless
--serial is given.

Examples:
  knxunlock checkpoints -t 1.1.5 --serial 00FA12345678
  knxunlock checkpoints -t 1.1.5 -c "Type=Usb VendorId=0E77 ProductId=0104" -s 7`,
	RunE: runCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)

	addTargetFlags(checkpointsCmd)
	addIdentityFlags(checkpointsCmd)
	checkpointsCmd.Flags().StringVar(&checkpointSerial, "serial", "", "device serial in hex, skips reading it from the device")
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	addr, err := cfg.Address()
	if err != nil {
		return fmt.Errorf("invalid configuration: target: %w", err)
	}
	shard := cfg.Shard()
	if err := shard.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	ctx := cmd.Context()

	id := checkpoint.Identity{Address: addr.String(), Seed: cfg.Seed, Shard: shard}
	if checkpointSerial != "" {
		id.Serial, err = hex.DecodeString(strings.ReplaceAll(checkpointSerial, "-", ""))
		if err != nil {
			return fmt.Errorf("serial %q: %w", checkpointSerial, err)
		}
	} else {
		if err := cfg.ValidateTarget(); err != nil {
			return fmt.Errorf("invalid configuration: %w (or pass --serial)", err)
		}
		sess, err := openSession(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer sess.Close()
		exec := search.NewExecutor(sess.dev, log)
		exec.RetryInterval = cfg.RetryInterval
		if id.Serial, err = exec.ReadSerial(ctx); err != nil {
			return err
		}
	}

	store, err := checkpoint.Open(ctx, cfg.Checkpoint.Location, log)
	if err != nil {
		return fmt.Errorf("open checkpoints: %w", err)
	}
	defer store.Close()
	log.Debug("listing checkpoints", "location", store.Location(), "identity", id.Name())

	recs, err := store.List(ctx, id)
	if err != nil {
		return err
	}
	console.NewPrinter(cmd.OutOrStdout()).Checkpoints(id.Name(), recs)
	return nil
}
