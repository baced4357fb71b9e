package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	metaconfigPath string
	logLevel       string
	logFormat      string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "waycrest",
		Short: "Waycrest - tag-based compositor core",
		Long: `Waycrest is a compositor core with tag-based window management and an
out-of-process configuration runtime.

The compositor owns windows, tags, and outputs; behavior is driven by a
separate config process that talks back over a local control socket. The
config process can crash and be replaced at any time without disturbing
window state.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&metaconfigPath, "metaconfig", "m", "metaconfig.yaml", "metaconfig descriptor path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newReloadCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
