// Package httpapi exposes the answer pipeline over HTTP.
package httpapi

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

	"github.com/caretext/answerd/internal/chunkstore"
	"github.com/caretext/answerd/internal/pipeline"
)

// Answerer runs one query through the pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string) (*pipeline.AnswerResponse, error)
}

// Ingester stores chunks into the corpus.
type Ingester interface {
	AddChunks(ctx context.Context, chunks []chunkstore.Chunk) ([]string, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Server provides the HTTP endpoints for answerd.
type Server struct {
	echo     *echo.Echo
	answerer Answerer
	ingester Ingester
	logger   *zap.Logger
	config   *Config
}

// NewServer creates the HTTP server. ingester may be nil to disable the
// ingest endpoint.
func NewServer(answerer Answerer, ingester Ingester, logger *zap.Logger, cfg *Config) (*Server, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8480}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

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
		echo:     e,
		answerer: answerer,
		ingester: ingester,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	if s.ingester != nil {
		v1.POST("/chunks", s.handleIngest)
	}
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// IngestRequest is the request body for POST /api/v1/chunks.
type IngestRequest struct {
	Chunks []chunkstore.Chunk `json:"chunks"`
}

// IngestResponse is the response body for POST /api/v1/chunks.
type IngestResponse struct {
	IDs []string `json:"ids"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleQuery answers one question. The response body is the pipeline's
// AnswerResponse; new fields are only ever added, never renamed.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	resp, err := s.answerer.Answer(c.Request().Context(), req.Query)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
		}
		if errors.Is(err, pipeline.ErrRetrievalFailed) {
			s.logger.Error("chunk store unavailable", zap.Error(err))
			return echo.NewHTTPError(http.StatusServiceUnavailable, "retrieval backend unavailable")
		}
		s.logger.Error("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Chunks) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "chunks field is required")
	}

	ids, err := s.ingester.AddChunks(c.Request().Context(), req.Chunks)
	if err != nil {
		if errors.Is(err, chunkstore.ErrDimensionMismatch) || errors.Is(err, chunkstore.ErrEmptyChunks) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("ingest failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingest failed")
	}

	return c.JSON(http.StatusOK, IngestResponse{IDs: ids})
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
