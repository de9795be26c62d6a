// Command govctl holds operator tasks for the governance API: provisioning
// storage, minting test tokens and dry-running import fixtures.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errNotSyncReady) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "govctl",
		Short:         "Operator tooling for the governance API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(initStorageCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(checkCmd())
	return rootCmd
}
