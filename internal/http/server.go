// Package http exposes the conversation API over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/dialogd/internal/logging"
	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// Conversations is the part of the orchestrator the server exposes.
type Conversations interface {
	HandleUserMessage(ctx context.Context, p orchestrator.Params) (*orchestrator.TurnResult, error)
	ResetSession(ctx context.Context, sessionID, userID string) error
	GetSession(ctx context.Context, sessionID, userID string) (*session.State, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// RateLimit is requests per second per client IP. Zero disables
	// rate limiting.
	RateLimit float64 `koanf:"rate_limit"`
}

// NewDefaultConfig returns the default server configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Host:      "localhost",
		Port:      8080,
		RateLimit: 10,
	}
}

// Server provides the HTTP endpoints for dialogd.
type Server struct {
	echo          *echo.Echo
	conversations Conversations
	metrics       *Metrics
	logger        *zap.Logger
	config        *Config
}

// NewServer creates a new HTTP server.
func NewServer(conversations Conversations, metrics *Metrics, logger *zap.Logger, cfg *Config) (*Server, error) {
	if conversations == nil {
		return nil, fmt.Errorf("conversations service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			}
			fields = append(fields, logging.ContextFields(c.Request().Context())...)
			logger.Info("http request", fields...)

			return err
		}
	})
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}
	e.Use(metrics.Middleware())

	s := &Server{
		echo:          e,
		conversations: conversations,
		metrics:       metrics,
		logger:        logger,
		config:        cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		s.metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/conversation/message", s.handleMessage)
	v1.POST("/conversation/reset", s.handleReset)
	v1.GET("/conversation/session", s.handleGetSession)
}

// MessageRequest is the request body for POST /api/v1/conversation/message.
type MessageRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
	Locale    string `json:"locale,omitempty"`
}

// ResetRequest is the request body for POST /api/v1/conversation/reset.
type ResetRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
}

// StatusResponse is a minimal acknowledgement body.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleMessage runs one conversation turn.
func (s *Server) handleMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid message request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id field is required")
	}

	ctx := logging.WithSessionID(c.Request().Context(), req.SessionID)
	result, err := s.conversations.HandleUserMessage(ctx, orchestrator.Params{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Message:   req.Message,
		Locale:    req.Locale,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
		}
		s.logger.Error("conversation turn failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "conversation turn failed")
	}

	s.metrics.ObserveTurn(result)
	return c.JSON(http.StatusOK, result)
}

// handleReset deletes a session.
func (s *Server) handleReset(c echo.Context) error {
	var req ResetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id field is required")
	}

	if err := s.conversations.ResetSession(c.Request().Context(), req.SessionID, req.UserID); err != nil {
		s.logger.Error("session reset failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "session reset failed")
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: "reset"})
}

// handleGetSession returns the durable session state.
func (s *Server) handleGetSession(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id parameter is required")
	}

	st, err := s.conversations.GetSession(c.Request().Context(), sessionID, c.QueryParam("user_id"))
	if err != nil {
		s.logger.Error("session load failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "session load failed")
	}
	if st == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, st)
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
