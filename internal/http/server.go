// Package http serves translation options over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary"
	"github.com/fyrsmithlabs/phrasegroup/internal/engine"
	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
	"github.com/fyrsmithlabs/phrasegroup/internal/telemetry"
)

// Translator collects the translation options of one sentence.
type Translator interface {
	Translate(ctx context.Context, s engine.Sentence) (*engine.Result, error)
}

// Server provides HTTP endpoints for phrasegroup.
type Server struct {
	echo       *echo.Echo
	translator Translator
	logger     *logging.Logger
	config     *Config
	metrics    *HTTPMetrics
	telemetry  *telemetry.Telemetry
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Option customizes a Server.
type Option func(*serverOptions)

type serverOptions struct {
	meter     metric.Meter
	gatherer  prometheus.Gatherer
	telemetry *telemetry.Telemetry
}

// WithMeter records HTTP metrics on m instead of the global meter.
func WithMeter(m metric.Meter) Option {
	return func(o *serverOptions) { o.meter = m }
}

// WithGatherer serves g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *serverOptions) { o.gatherer = g }
}

// WithTelemetry reports the telemetry provider state on GET /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *serverOptions) { o.telemetry = t }
}

// NewServer creates a new HTTP server.
func NewServer(translator Translator, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}
	o := serverOptions{
		meter:    otel.Meter(httpInstrumentationName),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		translator: translator,
		logger:     logger,
		config:     cfg,
		metrics:    NewHTTPMetrics(o.meter, logger.Underlying()),
		telemetry:  o.telemetry,
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestContext)

	s.registerRoutes(o.gatherer)
	return s, nil
}

// requestContext carries the request id into the request context and logs
// every request.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		ctx := c.Request().Context()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidRequestID(id) {
			ctx = logging.WithRequestID(ctx, id)
			c.SetRequest(c.Request().WithContext(ctx))
		}

		err := next(c)
		if err != nil {
			// Let echo write the error so the logged status is final.
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/options", s.handleOptions)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.telemetry != nil {
		health := s.telemetry.Health()
		resp.Telemetry = &health
	}
	return c.JSON(http.StatusOK, resp)
}

// handleOptions returns the translation options of one sentence.
func (s *Server) handleOptions(c echo.Context) error {
	ctx := c.Request().Context()

	var req OptionsRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid options request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	res, err := s.translator.Translate(ctx, engine.Sentence{ID: req.ID, Text: req.Text})
	switch {
	case errors.Is(err, dictionary.ErrGrammarLoad):
		s.logger.Warn(ctx, "grammar not available", zap.Int64("sentence.id", req.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request canceled")
	case err != nil:
		s.logger.Error(ctx, "translation failed", zap.Int64("sentence.id", req.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "translation failed")
	}

	s.logger.Debug(ctx, "options collected",
		zap.Int64("sentence.id", req.ID),
		zap.Int("options", res.NumOptions()),
	)
	return c.JSON(http.StatusOK, res)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
