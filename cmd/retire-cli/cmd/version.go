package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X retire/cmd/retire-cli/cmd.Version=...".
var (
	Version   = "0.1.0"
	GitCommit = "development"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			printf(out, "retire-cli v%s\n", Version)
			printf(out, "  Git Commit: %s\n", GitCommit)
			printf(out, "  Build Date: %s\n", BuildDate)
			printf(out, "  Go Version: %s\n", runtime.Version())
			printf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
