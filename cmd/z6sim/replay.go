package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/z6sim/core"
)

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [ledger]",
		Short: "verify a ledger's checksums, ordering and causality invariants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := core.Verify(path); err != nil {
				return fmt.Errorf("replay verification failed: %w", err)
			}
			loaded, err := core.ReadLedgerFile(path)
			if err != nil {
				return fmt.Errorf("read ledger: %w", err)
			}
			fmt.Printf("ledger %s: %d records, prng_seed=%d, verified ok\n", path, len(loaded.Records), loaded.Header.PRNGSeed)
			return nil
		},
	}
	return cmd
}
