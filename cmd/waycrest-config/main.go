// Package main implements the waycrest-config binary: the reference
// configuration runtime. It connects back to the compositor over the
// control socket it was launched with, executes a Starlark config script
// against protocol builtins, and then services compositor events until
// the compositor replaces or kills it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waycrest/waycrest/pkg/client"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
)

func main() {
	var (
		scriptPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:     "waycrest-config",
		Short:   "Waycrest reference configuration runtime",
		Version: Version,
		Long: `waycrest-config executes a Starlark configuration script against the
compositor's control protocol. It is normally launched by the compositor
itself via the metaconfig descriptor, with WAYCREST_SOCKET set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
				Level:  logLevel,
				Format: "console",
				Output: "stderr",
			})
			if err != nil {
				return err
			}

			cl, err := client.DialEnv(logger)
			if err != nil {
				return err
			}
			defer cl.Close()

			rt := newRuntime(cl, logger)
			if err := rt.execScript(scriptPath); err != nil {
				return fmt.Errorf("config script failed: %w", err)
			}
			return rt.serveEvents(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&scriptPath, "script", "s", "config.star", "Starlark config script")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
