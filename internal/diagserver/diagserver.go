// Package diagserver implements the optional, loopback-only diagnostics
// HTTP server (§A.6): a read-only surface over the current StatusFile,
// CoreState, ExtState, and run history, for operators and the
// troubleshooting tool. It never writes any of the files it serves.
package diagserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/config"
	"github.com/azure-patch/linux-patch-core/internal/extenv"
	"github.com/azure-patch/linux-patch-core/internal/history"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

// Server is the diagnostics HTTP server.
type Server struct {
	log     *zap.SugaredLogger
	env     recorder.Environment
	layout  extenv.Layout
	history *history.Store
	metrics *runMetrics
	refresh time.Duration

	httpSrv *http.Server
}

// New builds a Server bound to cfg.Address. history may be nil, in which
// case /history reports 503 rather than panicking and /metrics publishes
// its gauges at their zero value.
func New(log *zap.SugaredLogger, env recorder.Environment, layout extenv.Layout, h *history.Store, cfg config.Diagnostics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	named := log.Desugar().Named("diagserver")
	router.Use(ginzap.Ginzap(named, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(named, true))

	refresh := time.Duration(cfg.MetricsRefreshSeconds) * time.Second
	if refresh <= 0 {
		refresh = 15 * time.Second
	}
	s := &Server{log: log, env: env, layout: layout, history: h, metrics: newRunMetrics(), refresh: refresh}

	router.GET("/status", s.getStatus)
	router.GET("/status/complete", s.getStatusComplete)
	router.GET("/extstate", s.getExtState)
	router.GET("/corestate", s.getCoreState)
	router.GET("/history", s.getHistory)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	s.httpSrv = &http.Server{Addr: cfg.Address, Handler: router}
	return s
}

// Handler returns the underlying HTTP handler, exported so tests can drive
// routes directly via httptest without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()
	go s.runMetricsRefreshLoop(ctx, s.refresh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) currentSequence() (int, bool) {
	return extenv.DiscoverSequenceNumber(s.layout.ConfigDir)
}

func (s *Server) readJSONFile(c *gin.Context, path string) {
	data, found, err := s.env.ReadFile(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) getStatus(c *gin.Context) {
	n, ok := s.currentSequence()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sequence number discoverable"})
		return
	}
	s.readJSONFile(c, s.layout.StatusPath(n))
}

func (s *Server) getStatusComplete(c *gin.Context) {
	n, ok := s.currentSequence()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sequence number discoverable"})
		return
	}
	s.readJSONFile(c, s.layout.CompletePath(n))
}

func (s *Server) getExtState(c *gin.Context) {
	s.readJSONFile(c, s.layout.ExtStatePath())
}

func (s *Server) getCoreState(c *gin.Context) {
	s.readJSONFile(c, s.layout.CoreStatePath())
}

func (s *Server) getHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history ledger not configured"})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}
