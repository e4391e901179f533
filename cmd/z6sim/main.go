package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{Use: "z6sim"}
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(reportCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
