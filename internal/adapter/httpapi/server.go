// Package httpapi exposes the operator REST surface: config replacement,
// replay and fetch triggers, the stored summary, and the health, readiness,
// and metrics probes.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hydrowatch/reservoir-pipeline/internal/configstore"
	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
	"github.com/hydrowatch/reservoir-pipeline/internal/pipeline"
)

// ConfigStore persists the replay directives.
type ConfigStore interface {
	Replace(configs []domain.ReservoirConfig) error
	Load() ([]domain.ReservoirConfig, error)
}

// FetchRunner triggers a fetch-and-store pass.
type FetchRunner interface {
	Run(ctx context.Context, start, end time.Time) map[string]pipeline.StationFetchResult
}

// ReplayRunner triggers a replay pass.
type ReplayRunner interface {
	Run(ctx context.Context) (map[string]pipeline.StationReplayResult, error)
}

// SummaryProvider reads the aggregated per-station statistics.
type SummaryProvider interface {
	SummaryStats(ctx context.Context) ([]domain.StationSummary, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server bundles the router and its collaborators.
type Server struct {
	addr    string
	configs ConfigStore
	fetch   FetchRunner
	replay  ReplayRunner
	summary SummaryProvider
	ready   ReadinessChecker
	scheme  domain.TopicScheme
	logger  *slog.Logger
	engine  *gin.Engine
}

// NewServer constructs the server with routes and middleware registered.
func NewServer(addr string, configs ConfigStore, fetch FetchRunner, replay ReplayRunner,
	summary SummaryProvider, ready ReadinessChecker, scheme domain.TopicScheme, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	s := &Server{
		addr:    addr,
		configs: configs,
		fetch:   fetch,
		replay:  replay,
		summary: summary,
		ready:   ready,
		scheme:  scheme,
		logger:  logger,
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// drains connections within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/readyz", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.POST("/configs", s.handleUpdateConfigs)
	api.GET("/configs", s.handleGetConfigs)
	api.POST("/replay", s.handleReplay)
	// The legacy producer exposed replay as a GET; kept for callers that
	// still trigger it that way.
	api.GET("/replay", s.handleReplay)
	api.POST("/fetch-data", s.handleFetchData)
	api.GET("/fetch-data", s.handleFetchData)
	api.GET("/summary", s.handleSummary)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.CheckReadiness(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleUpdateConfigs replaces the stored directive array wholesale and
// returns the topics the new directives will publish to.
// POST /api/configs
func (s *Server) handleUpdateConfigs(c *gin.Context) {
	var configs []domain.ReservoirConfig
	if err := c.ShouldBindJSON(&configs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(configs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "config array is empty"})
		return
	}

	if err := s.configs.Replace(configs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	topics := make([]string, len(configs))
	for i, cfg := range configs {
		topics[i] = domain.TopicForStation(s.scheme, cfg.CdecID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "configs updated", "topics": topics})
}

// handleGetConfigs returns the stored directive array.
// GET /api/configs
func (s *Server) handleGetConfigs(c *gin.Context) {
	configs, err := s.configs.Load()
	if errors.Is(err, configstore.ErrConfigMissing) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, configs)
}

// handleReplay runs a replay pass over the stored directives.
// POST /api/replay (GET kept for legacy callers)
func (s *Server) handleReplay(c *gin.Context) {
	results, err := s.replay.Run(c.Request.Context())
	if errors.Is(err, configstore.ErrConfigMissing) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "replay complete", "details": results})
}

// handleFetchData runs a fetch-and-store pass. start_date is required;
// end_date defaults to today.
// GET/POST /api/fetch-data
func (s *Server) handleFetchData(c *gin.Context) {
	startStr := c.Query("start_date")
	if startStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date is required"})
		return
	}
	start, err := time.ParseInLocation("2006-01-02", startStr, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}

	end := domain.Now().UTC().Truncate(24 * time.Hour)
	if endStr := c.Query("end_date"); endStr != "" {
		end, err = time.ParseInLocation("2006-01-02", endStr, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
			return
		}
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date is before start_date"})
		return
	}

	results := s.fetch.Run(c.Request.Context(), start, end)
	c.JSON(http.StatusOK, gin.H{"message": "fetch complete", "details": results})
}

// handleSummary returns per-station aggregates over all stored readings.
// GET /api/summary
func (s *Server) handleSummary(c *gin.Context) {
	summaries, err := s.summary.SummaryStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
