// Package web serves the healing pipeline's HTTP front door.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/analytics"
	"github.com/lucasnoah/healfactory/internal/db"
	"github.com/lucasnoah/healfactory/internal/orchestrator"
	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// Controller is the run slot the front door drives.
type Controller interface {
	Trigger(req orchestrator.TriggerRequest) (*orchestrator.Ack, error)
	Status() orchestrator.Status
	Result() (*pipeline.RunRecord, error)
	Timeline() orchestrator.Timeline
	Reset() orchestrator.Status
	Cancel() error
}

// RunHistory lists stored runs. Optional.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]db.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*pipeline.RunRecord, error)
}

// Config holds the listen address.
type Config struct {
	Host string
	Port int
}

// Server is the JSON API server.
type Server struct {
	echo      *echo.Echo
	ctrl      Controller
	history   RunHistory
	analytics analytics.Querier
	logger    *zap.Logger
	config    Config
	now       func() time.Time
}

// NewServer creates a Server with its routes registered. gatherer backs
// /metrics; nil uses the default prometheus registry.
func NewServer(ctrl Controller, gatherer prometheus.Gatherer, logger *zap.Logger, cfg Config) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("web")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		ctrl:   ctrl,
		logger: logger,
		config: cfg,
		now:    time.Now,
	}
	s.registerRoutes(gatherer)
	return s
}

// SetHistory enables /api/runs.
func (s *Server) SetHistory(h RunHistory) { s.history = h }

// SetAnalytics enables /api/analytics.
func (s *Server) SetAnalytics(q analytics.Querier) { s.analytics = q }

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.echo.Group("/api")
	api.POST("/run-agent", s.handleRunAgent)
	api.GET("/status", s.handleStatus)
	api.GET("/results", s.handleResults)
	api.GET("/timeline", s.handleTimeline)
	api.POST("/reset", s.handleReset)
	api.POST("/cancel", s.handleCancel)
	api.GET("/runs", s.handleRuns)
	api.GET("/runs/:id", s.handleRun)
	api.GET("/analytics", s.handleAnalytics)
}

// Start listens until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
