package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceKNX/internal/console"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/knx"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available KNX interfaces",
	Long: `Scan the host for KNX USB interfaces and print the connection string that
selects each of them. The simulator is always listed.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	infos, err := knx.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	console.NewPrinter(cmd.OutOrStdout()).Interfaces(infos)
	return nil
}
