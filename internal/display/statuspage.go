package display

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"metamac/internal/health"
	"metamac/internal/protocol"
)

// StatusServer serves the last-known suite snapshot as JSON on
// localhost, for operators who want a scriptable view without parsing
// CSV or subscribing to UDP telemetry.
type StatusServer struct {
	mu   sync.RWMutex
	last Snapshot
	srv  *http.Server
}

// NewStatusServer builds a gin engine with a single GET /status route and
// binds it to addr (e.g. "127.0.0.1:8401").
func NewStatusServer(addr string) *StatusServer {
	s := &StatusServer{}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/status", s.handleStatus)
	s.srv = &http.Server{Addr: addr, Handler: router}
	return s
}

// Update implements processor.DisplaySink.
func (s *StatusServer) Update(suite *protocol.Suite, pcoll float64, h health.Snapshot) {
	snap := snapshot(suite, pcoll, h)
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}

func (s *StatusServer) handleStatus(c *gin.Context) {
	s.mu.RLock()
	snap := s.last
	s.mu.RUnlock()

	weights := make(map[string]float64, len(snap.Names))
	for i, n := range snap.Names {
		weights[n] = snap.Weights[i]
	}
	c.JSON(http.StatusOK, gin.H{
		"active":  snap.Active,
		"weights": weights,
		"pcoll":   snap.PColl,
		"cpu":     snap.Health.CPUPercent,
		"mem_used_mb":  snap.Health.MemUsedBytes / 1e6,
		"mem_total_mb": snap.Health.MemTotal / 1e6,
		"at":     snap.At.Format(time.RFC3339),
	})
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *StatusServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("display: status server: %w", err)
	}
	return nil
}
