// Package cmd wires the nport-edge command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "nport-edge",
	Short:         "Edge API that provisions and expires named tunnels",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute parses args and dispatches to the appropriate subcommand,
// returning a process exit code. SIGINT/SIGTERM cancel the command context
// so long-running commands shut down gracefully.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.AddCommand(ServeCommand().cmd)
	rootCmd.AddCommand(ReapCommand().cmd)
	rootCmd.AddCommand(HashPasswordCommand().cmd)
	rootCmd.AddCommand(VersionCommand().cmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
