package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X .../internal/cli.version=... -X .../internal/cli.buildTime=...".
var (
	version   string
	buildTime string
)

func Version() string {
	v := version
	if v == "" {
		v = "dev-snapshot"
	}
	extra := []string{}
	if buildTime != "" {
		extra = append(extra, buildTime)
	}
	extra = append(extra, runtime.Version())
	return fmt.Sprintf("%s (%s)", v, strings.Join(extra, ", "))
}

func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "visa-scheduler %s\n", Version())
		},
	}
}
