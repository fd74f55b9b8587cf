// Package server exposes the HTTP API: reading ingest and queries,
// analytics, maintenance, health and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xtxerr/meteolog/config"
	"github.com/xtxerr/meteolog/internal/logging"
	"github.com/xtxerr/meteolog/internal/metrics"
	"github.com/xtxerr/meteolog/internal/service"
)

var log = logging.Component("server")

// Server is the HTTP front end over the service.
type Server struct {
	cfg     config.ServerConfig
	svc     *service.Service
	metrics *metrics.Metrics
	engine  *gin.Engine
}

// New builds the router and its middleware. The metrics set is registered
// for live component stats and exposed on /metrics.
func New(cfg config.ServerConfig, svc *service.Service, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: m,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.observe)
	s.engine = engine
	s.routes()

	m.RegisterStats(svc.Stats)
	return s
}

func (s *Server) routes() {
	e := s.engine

	e.GET("/", s.handleRoot)
	e.GET("/status", s.handleStatus)
	e.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	e.POST("/readings", s.handleIngest)
	e.GET("/readings/recent", s.handleRecent)
	e.GET("/readings/latest", s.handleLatest)
	e.GET("/readings/export", s.handleExport)
	e.DELETE("/readings", s.handleClear)

	e.GET("/analytics/average", s.handleAverage)
	e.GET("/analytics/summary", s.handleSummary)

	e.POST("/simulate/sensor-data", s.handleSimulate)
}

// observe logs every request and feeds the HTTP metrics.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	elapsed := time.Since(start)

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	s.metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status), elapsed)

	logFn := log.Info
	if status >= http.StatusInternalServerError {
		logFn = log.Warn
	}
	logFn("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
		"client", c.ClientIP())
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("http server listening", "addr", s.cfg.Listen)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	log.Info("http server stopped")
	return nil
}
