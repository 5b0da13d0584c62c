// Package server exposes risk assessment, transaction chat and the
// compliance dashboard over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/riskdesk/internal/cache"
	"github.com/Veraticus/riskdesk/internal/chat"
	"github.com/Veraticus/riskdesk/internal/metrics"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/service"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Assessor produces customer-level assessments.
type Assessor interface {
	Assess(ctx context.Context, customerID string) (*model.Assessment, error)
}

// Chatter answers chat queries.
type Chatter interface {
	Handle(ctx context.Context, q chat.Query) chat.Result
}

// PageSource serves scored dashboard pages.
type PageSource interface {
	Page(ctx context.Context, key cache.Key, regenerate bool) (*cache.PageResult, error)
}

// DataCounter counts stored transactions. Without a provider it still lets
// handlers tell a customer with no data from one they cannot analyze.
type DataCounter interface {
	CountTransactions(ctx context.Context, filter service.TransactionFilter) (int, error)
}

// Options wires the server. Unavailable records why the provider-backed
// components could not be built; handlers then answer with
// chat.NotConfiguredMessage instead of failing.
type Options struct {
	Assessor    Assessor
	Chat        Chatter
	Pages       PageSource
	Data        DataCounter
	Ping        func(ctx context.Context) error
	Unavailable error
	Addr        string
}

// Server is the HTTP API.
type Server struct {
	router *gin.Engine
	http   *http.Server
	opts   Options
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{opts: opts, router: gin.New()}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("Panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}))
	s.router.Use(metrics.Middleware())
	s.router.Use(limitBody(maxBodyBytes))
	s.router.Use(requestLogger())
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/metrics", metrics.Handler())

	api := s.router.Group("/api")
	api.POST("/risk-assessment", s.riskAssessmentHandler)
	api.POST("/transaction-chat", s.transactionChatHandler)
	api.GET("/compliance/transactions", s.complianceHandler)
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			slog.Error("Request completed", attrs...)
		case status >= 400:
			slog.Warn("Request completed", attrs...)
		default:
			slog.Debug("Request completed", attrs...)
		}
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	if s.opts.Ping != nil {
		if err := s.opts.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	body := gin.H{"status": "ok"}
	if s.opts.Unavailable != nil {
		body["llm"] = "not configured"
	}
	c.JSON(http.StatusOK, body)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Chat answers wait on up to three provider calls.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", s.opts.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
