// Package main implements the phrasegroup CLI: collect translation options
// for sentences, serve them over HTTP and build on-disk phrase tables.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/config"
	"github.com/fyrsmithlabs/phrasegroup/internal/engine"
	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
	"github.com/fyrsmithlabs/phrasegroup/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/phrasegroup/cmd/phrasegroup"

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "phrasegroup",
		Short: "Aggregate translation candidates from several phrase tables",
		Long: `phrasegroup looks up every source span of a sentence in its phrase tables
and merges the candidates of grouped tables into one option list with a single
score vector per candidate.`,
		Version:       version,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("config", "", "path to the YAML config file")

	root.AddCommand(newOptionsCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newBuildCmd())
	return root
}

// runtime holds what every engine-backed command sets up from config.
type runtime struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

func newRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging, otelProvider(cfg, tel), logging.WithWriter(cmd.ErrOrStderr()))
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	if tel.Health().Degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export")
	}

	return &runtime{cfg: cfg, logger: logger, telemetry: tel}, nil
}

// otelProvider returns the provider for the zap OTEL bridge, or nil when
// logs only go to stderr.
func otelProvider(cfg *config.Config, tel *telemetry.Telemetry) log.LoggerProvider {
	if !cfg.Logging.Output.OTEL {
		return nil
	}
	return tel.LoggerProvider()
}

func (r *runtime) newEngine(ctx context.Context) (*engine.Engine, error) {
	return engine.New(ctx, r.cfg, r.logger.Underlying(),
		engine.WithTracer(r.telemetry.Tracer(instrumentationName)),
		engine.WithMeter(r.telemetry.Meter(instrumentationName)),
	)
}

func (r *runtime) close(ctx context.Context) {
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = r.logger.Sync()
}

// openInput returns stdin for "" or "-", the named file otherwise.
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open input %s: %w", args[0], err)
	}
	return f, nil
}
