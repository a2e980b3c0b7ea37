package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	// Normalize: ensure non-dev versions start with "v" (GoReleaser
	// template {{.Version}} strips the prefix).
	if Version != "dev" && !strings.HasPrefix(Version, "v") {
		Version = "v" + Version
	}
}

type versionCommand struct {
	cmd *cobra.Command
}

func VersionCommand() *versionCommand {
	c := &versionCommand{}
	c.cmd = &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nport-edge", Version)
		},
	}
	return c
}
