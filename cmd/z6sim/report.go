package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/z6sim/core"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [ledger]",
		Short: "reduce a ledger into metrics and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := core.ReadLedgerFile(args[0])
			if err != nil {
				return fmt.Errorf("read ledger: %w", err)
			}
			metrics := core.Reduce(loaded)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(metrics)
		},
	}
	return cmd
}
