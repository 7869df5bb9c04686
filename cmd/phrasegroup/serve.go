package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/phrasegroup/internal/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve translation options over HTTP",
		Long: `Load every configured phrase table and serve translation options until
SIGINT or SIGTERM.

Endpoints:
  GET  /health          health check
  POST /api/v1/options  {"id": 7, "text": "das haus"}
  GET  /metrics         prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close(context.WithoutCancel(ctx))

	eng, err := rt.newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	server, err := httpserver.NewServer(eng, rt.logger, &httpserver.Config{
		Host: rt.cfg.Server.Host,
		Port: rt.cfg.Server.Port,
	},
		httpserver.WithGatherer(eng.Gatherer()),
		httpserver.WithMeter(rt.telemetry.Meter(instrumentationName)),
		httpserver.WithTelemetry(rt.telemetry),
	)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info(context.Background(), "received shutdown signal",
		zap.Duration("shutdown_timeout", rt.cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
