package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wspotter/kit/daemon"
	kitotel "github.com/wspotter/kit/otel"
	"github.com/wspotter/kit/tool"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP tool server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, version)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from kit.yaml, then 127.0.0.1:8000)")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 5*time.Minute, "HTTP write timeout")

	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")

	rt, logger, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	cfg := rt.Config

	addr := cfg.Server.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observers, metricsHandler, shutdownTracing, err := setupObservers(ctx, cfg, version, logger)
	if err != nil {
		return exitError(exitRuntime, "initializing observability: %v", err)
	}
	defer shutdownTracing()
	tool.SetObserver(observers)
	defer tool.SetObserver(nil)

	tools, err := rt.Registry.Discover(ctx)
	if err != nil {
		return exitError(exitRuntime, "discovering tools: %v", err)
	}
	logger.Info("tools discovered", "count", len(tools))

	server, err := daemon.NewServer(daemon.ServerConfig{
		Registry:   rt.Registry,
		History:    rt.History,
		Metrics:    metricsHandler,
		CORSOrigin: cfg.Server.CORSOrigin,
		MaxBody:    cfg.Server.MaxBody,
		Logger:     logger,
	})
	if err != nil {
		return exitError(exitRuntime, "creating server: %v", err)
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Kit listening on %s\n", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// setupObservers wires Prometheus and OpenTelemetry observers. The returned
// shutdown func flushes any OTLP exporter.
func setupObservers(ctx context.Context, cfg daemon.Config, version string, logger *slog.Logger) (tool.Observer, http.Handler, func(), error) {
	var (
		observers tool.MultiObserver
		handler   http.Handler
		shutdown  = func() {}
	)

	if cfg.PrometheusEnabled() {
		prom, err := daemon.NewPrometheusObserver()
		if err != nil {
			return nil, nil, shutdown, err
		}
		observers = append(observers, prom)
		handler = prom.Handler()
	}

	tracer := otelapi.GetTracerProvider().Tracer("kit/tool")
	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := kitotel.NewTracerProvider(ctx, kitotel.TracerConfig{
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Insecure:    cfg.Telemetry.OTLPInsecure,
			ServiceName: cfg.Telemetry.ServiceName,
		})
		if err != nil {
			return nil, nil, shutdown, err
		}
		tracer = tp.Tracer("kit/tool", trace.WithInstrumentationVersion(version))
		shutdown = func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(flushCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}
		logger.Info("exporting traces", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}

	otelObserver, err := kitotel.NewToolObserver(otelapi.GetMeterProvider().Meter("kit/tool"), tracer)
	if err != nil {
		shutdown()
		return nil, nil, func() {}, err
	}
	observers = append(observers, otelObserver)
	return observers, handler, shutdown, nil
}
