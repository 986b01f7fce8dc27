// Package statushttp serves the optional ops surface: health and adapter
// run-state endpoints.
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"quotra/internal/logger"
	"quotra/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

// Server exposes /healthz and /api/status over HTTP. The orchestrator it
// reports on is swappable, so one listener survives adapter restarts.
type Server struct {
	addr   string
	router *gin.Engine
	meta   atomic.Pointer[orchestrator.Meta]
}

// ServerConfig describes the status server dependencies.
type ServerConfig struct {
	Addr string
	Meta *orchestrator.Meta
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Meta == nil {
		return nil, errors.New("status server requires the orchestrator")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8797"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{addr: cfg.Addr, router: router}
	s.meta.Store(cfg.Meta)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"adapters": s.meta.Load().Status()})
	})
	api.GET("/exchanges", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"exchanges": s.meta.Load().Exchanges()})
	})

	return s, nil
}

// SetMeta swaps the orchestrator the endpoints report on. The supervisor
// calls this after a configuration reload rebuilds the adapters.
func (s *Server) SetMeta(m *orchestrator.Meta) {
	if s == nil || m == nil {
		return
	}
	s.meta.Store(m)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugw("http request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur", time.Since(start))
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
