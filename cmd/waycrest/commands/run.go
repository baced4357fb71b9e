package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waycrest/waycrest/pkg/backend"
	"github.com/waycrest/waycrest/pkg/compositor"
	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/supervisor"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// PidFileName is written next to the control socket so `waycrest reload`
// can find the running compositor.
const PidFileName = "waycrest.pid"

func newRunCommand() *cobra.Command {
	var (
		outputSpecs   []string
		metricsAddr   string
		traceExport   string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the compositor",
		Long: `Run starts the compositor loop: it binds the control socket, launches
the config process from the metaconfig descriptor, and manages windows
until quit. SIGHUP triggers a config reload.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := telemetry.DefaultConfig()
			cfg.ServiceVersion = cmd.Root().Version
			cfg.Logging.Level = logLevel
			cfg.Logging.Format = logFormat
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.ListenAddress = metricsAddr
			}
			if traceExport != "" && traceExport != "none" {
				cfg.Tracing.Enabled = true
				cfg.Tracing.Exporter = traceExport
				cfg.Tracing.Endpoint = traceEndpoint
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			metrics, err := telemetry.NewMetrics(cfg.Metrics)
			if err != nil {
				return fmt.Errorf("failed to initialize metrics: %w", err)
			}
			if cfg.Metrics.Enabled {
				errCh := metrics.StartMetricsServer()
				go func() {
					if err := <-errCh; err != nil {
						logger.WithError(err).Error("metrics server failed")
					}
				}()
			}

			tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}

			outputs, err := parseOutputSpecs(outputSpecs)
			if err != nil {
				return err
			}
			be := backend.NewHeadless(logger, outputs)

			sup := supervisor.New(metaconfigPath, logger, metrics)
			ctx := cmd.Context()
			if err := sup.Start(ctx); err != nil {
				return fmt.Errorf("failed to start config supervisor: %w", err)
			}

			pidPath := filepath.Join(filepath.Dir(sup.SocketPath()), PidFileName)
			if err := writePidFile(pidPath); err != nil {
				logger.WithError(err).Warn("pid file not written, `waycrest reload` will not find this instance")
			} else {
				defer os.Remove(pidPath)
			}

			comp := compositor.New(compositor.Options{
				Backend:    be,
				Supervisor: sup,
				Logger:     logger,
				Metrics:    metrics,
				Tracer:     tracer,
			})

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			go func() {
				for range hup {
					logger.Info("SIGHUP received, reloading config")
					if err := comp.Reload(ctx); err != nil {
						logger.WithError(err).Error("config reload failed")
					}
				}
			}()
			defer signal.Stop(hup)
			defer tracer.Shutdown(ctx)

			return comp.Run(ctx)
		},
	}

	cmd.Flags().StringArrayVar(&outputSpecs, "output", []string{"HEADLESS-1:1920x1080"}, "synthetic output as name:WxH (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (empty disables)")
	cmd.Flags().StringVar(&traceExport, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP collector endpoint")
	return cmd
}

// parseOutputSpecs parses name:WxH output descriptions, placing outputs
// left to right in the global coordinate space.
func parseOutputSpecs(specs []string) ([]backend.HeadlessOutput, error) {
	var outputs []backend.HeadlessOutput
	var x int32
	for _, spec := range specs {
		name, dims, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("invalid output spec %q, want name:WxH", spec)
		}
		ws, hs, ok := strings.Cut(dims, "x")
		if !ok {
			return nil, fmt.Errorf("invalid output dimensions %q, want WxH", dims)
		}
		w, err := strconv.ParseInt(ws, 10, 32)
		if err != nil || w < 1 {
			return nil, fmt.Errorf("invalid output width %q", ws)
		}
		h, err := strconv.ParseInt(hs, 10, 32)
		if err != nil || h < 1 {
			return nil, fmt.Errorf("invalid output height %q", hs)
		}
		outputs = append(outputs, backend.HeadlessOutput{
			Name: name,
			Loc:  geometry.Point{X: x},
			Res:  geometry.Size{W: int32(w), H: int32(h)},
		})
		x += int32(w)
	}
	return outputs, nil
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
