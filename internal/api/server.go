// Package api provides the HTTP API for cycle-tracker.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"cycle-tracker/internal/insight"
	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/share"
	"cycle-tracker/internal/tracker"
)

const maxBodySize = "1M"

// Server provides HTTP endpoints for cycle-tracker.
type Server struct {
	echo     *echo.Echo
	tracker  *tracker.Service
	shares   *share.Issuer
	narrator *insight.Narrator
	exporter *metrics.Exporter
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Port      string
	PublicURL string
	// Webhook receives Telegram updates on POST /webhook when set.
	Webhook http.Handler
}

// NewServer creates a new HTTP server.
func NewServer(
	svc *tracker.Service,
	shares *share.Issuer,
	narrator *insight.Narrator,
	exporter *metrics.Exporter,
	logger *zap.Logger,
	cfg *Config,
) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("tracker service cannot be nil")
	}
	if shares == nil {
		return nil, fmt.Errorf("share issuer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if narrator == nil {
		narrator = insight.NewNarrator(nil, logger)
	}
	if cfg == nil {
		cfg = &Config{Port: "8080"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		tracker:  svc,
		shares:   shares,
		narrator: narrator,
		exporter: exporter,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	if s.exporter != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.exporter.Handler()))
	}
	if s.config.Webhook != nil {
		s.echo.POST("/webhook", echo.WrapHandler(s.config.Webhook))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/predict", s.handlePredict)

	users := v1.Group("/users/:user")
	users.GET("/logs", s.handleListLogs)
	users.GET("/logs/:date", s.handleGetLog)
	users.PUT("/logs/:date", s.handlePutLog)
	users.DELETE("/logs/:date", s.handleDeleteLog)
	users.GET("/prediction", s.handleUserPrediction)
	users.POST("/shares", s.handleCreateShare)

	v1.GET("/shared/:token", s.handleSharedPrediction)
	v1.DELETE("/shared/:token", s.handleRevokeShare)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := ":" + s.config.Port
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
