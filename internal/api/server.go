// Package api serves the read-only status surface of the watcher.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/internal/logger"
)

// StatusSource is the read accessor the seen-set exposes to the status surface.
type StatusSource interface {
	Recent(sourceKey string) []domain.Item
	Len(sourceKey string) int
	Degraded() bool
	Backend() string
}

// SourceInfo names one configured source.
type SourceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type sourceSummary struct {
	SourceInfo
	Records int `json:"records"`
}

// Server wires the gin router around a StatusSource.
type Server struct {
	addr    string
	status  StatusSource
	sources []SourceInfo
	metrics http.Handler
	log     logger.Logger
}

// NewServer builds a status server. metrics may be nil to omit /metrics.
func NewServer(addr string, status StatusSource, srcs []SourceInfo, metrics http.Handler, log logger.Logger) *Server {
	return &Server{
		addr:    addr,
		status:  status,
		sources: append([]SourceInfo(nil), srcs...),
		metrics: metrics,
		log:     logger.Ensure(log),
	}
}

// Router constructs a Gin engine with registered routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/sources", s.handleSources)
	r.GET("/sources/:id/recent", s.handleRecent)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"degraded": s.status.Degraded(),
		"backend":  s.status.Backend(),
	})
}

func (s *Server) handleSources(c *gin.Context) {
	out := make([]sourceSummary, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, sourceSummary{SourceInfo: src, Records: s.status.Len(src.ID)})
	}
	c.JSON(http.StatusOK, gin.H{"sources": out})
}

func (s *Server) handleRecent(c *gin.Context) {
	id := c.Param("id")
	if !s.known(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown source %q", id)})
		return
	}
	items := s.status.Recent(id)
	if items == nil {
		items = []domain.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"source": id, "items": items})
}

func (s *Server) known(id string) bool {
	for _, src := range s.sources {
		if src.ID == id {
			return true
		}
	}
	return false
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("status server listening", "http_addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
