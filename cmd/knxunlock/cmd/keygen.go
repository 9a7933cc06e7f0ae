package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyfile"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

var keygenOutput string

var keygenCmd = &cobra.Command{
	Use:   "keygen MIDDLE",
	Short: "Write a dictionary of keys around a known middle fragment",
	Long: `Write the 65536 keys PPMMMMSS whose middle four hex digits are MIDDLE, one per
line. The output is compressed when the file name ends in .gz, .zst or .lz4.

Examples:
  knxunlock keygen 3A7C -o keys.txt
  knxunlock keygen 3A7C -o keys.txt.zst`,
	Args: cobra.ExactArgs(1),
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", keyfile.DefaultName, "output file")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	middle, err := keyspace.ParseMiddle(args[0])
	if err != nil {
		return err
	}

	w, err := keyfile.Create(keygenOutput)
	if err != nil {
		return err
	}
	if err := keyfile.WriteDerived(w, middle); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", keygenOutput, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d keys to %s\n", w.Count(), keygenOutput)
	return nil
}
