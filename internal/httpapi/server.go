// Package httpapi provides the webhook ingress for fieldgovd.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/internal/schema"
	"github.com/fyrsmithlabs/fieldgov/internal/sweep"
	"github.com/fyrsmithlabs/fieldgov/internal/worker"
)

// secretHeader carries the shared webhook secret on hook routes.
const secretHeader = "X-Webhook-Secret"

// Enqueuer accepts a change request for asynchronous processing.
// *worker.Pool satisfies this.
type Enqueuer interface {
	Enqueue(req schema.ElementRequest) error
}

// Sweeper runs one governance sweep. *sweep.Driver satisfies this.
type Sweeper interface {
	Sweep(ctx context.Context) ([]sweep.Outcome, error)
}

// Server provides the HTTP endpoints for fieldgovd.
type Server struct {
	echo    *echo.Echo
	queue   Enqueuer
	sweeper Sweeper
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host   string
	Port   int
	Secret string
}

// NewServer creates the webhook ingress server.
func NewServer(queue Enqueuer, sweeper Sweeper, logger *zap.Logger, cfg *Config) (*Server, error) {
	if queue == nil {
		return nil, fmt.Errorf("enqueuer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil || cfg.Secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		queue:   queue,
		sweeper: sweeper,
		logger:  logger,
		config:  cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Inbound hooks, behind the shared secret
	hooks := s.echo.Group("/hooks", s.requireSecret)
	hooks.POST("/field-request", s.handleFieldRequest)
	hooks.POST("/governance-sweep", s.handleGovernanceSweep)
}

// requireSecret rejects hook calls without the shared secret header.
func (s *Server) requireSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		got := c.Request().Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.config.Secret)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
		}
		return next(c)
	}
}

// FieldRequestBody is the request body for POST /hooks/field-request.
type FieldRequestBody struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Options  []string `json:"options,omitempty"`
	Screens  []string `json:"screens,omitempty"`
	IssueKey string   `json:"issue_key"`
}

// FieldRequestResponse is the response body for POST /hooks/field-request.
type FieldRequestResponse struct {
	Status   string `json:"status"`
	IssueKey string `json:"issue_key,omitempty"`
}

// SweepResponse is the response body for POST /hooks/governance-sweep.
type SweepResponse struct {
	Records    int `json:"records"`
	Violations int `json:"violations"`
	Remediated int `json:"remediated"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleFieldRequest accepts an admin change request and queues it for
// orchestration. Processing is asynchronous; the outcome lands on the
// requesting ticket as a comment.
func (s *Server) handleFieldRequest(c echo.Context) error {
	var body FieldRequestBody
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid field request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if body.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name field is required")
	}
	kind := schema.ElementKind(body.Kind)
	if !kind.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("kind must be one of choice, text, paragraph; got %q", body.Kind))
	}

	req := schema.ElementRequest{
		Name:     body.Name,
		Kind:     kind,
		Options:  body.Options,
		Screens:  body.Screens,
		IssueKey: body.IssueKey,
	}

	if err := s.queue.Enqueue(req); err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "request queue is full, retry later")
		}
		s.logger.Error("enqueue failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "not accepting requests")
	}

	s.logger.Info("field request queued",
		zap.String("name", body.Name),
		zap.String("kind", body.Kind),
		zap.String("issue_key", body.IssueKey),
	)

	return c.JSON(http.StatusAccepted, FieldRequestResponse{
		Status:   "queued",
		IssueKey: body.IssueKey,
	})
}

// handleGovernanceSweep triggers one sweep over the configured batch and
// reports the aggregate counts.
func (s *Server) handleGovernanceSweep(c echo.Context) error {
	if s.sweeper == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "sweep is not configured")
	}

	outcomes, err := s.sweeper.Sweep(c.Request().Context())
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "sweep failed against the tracker")
	}

	resp := SweepResponse{Records: len(outcomes)}
	for _, o := range outcomes {
		if len(o.Findings) > 0 {
			resp.Violations++
		}
		resp.Remediated += len(o.Remediated)
	}

	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
