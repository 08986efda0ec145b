package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aevon-lab/cohort/internal/metrics"
)

const (
	healthTimeout          = 2 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// HealthChecker reports whether the run store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Routes is implemented by API handlers mounted on the server.
type Routes interface {
	RegisterRoutes(r gin.IRouter)
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status   string `json:"status"`
	RunStore string `json:"run_store"`
	Error    string `json:"error,omitempty"`
}

type Server struct {
	Engine          *gin.Engine
	Addr            string
	ShutdownTimeout time.Duration

	health HealthChecker
}

// New builds the HTTP server with /health and /metrics. health may be nil
// when no run store is configured.
func New(addr string, health HealthChecker, mode string, rec *metrics.Recorder) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Engine:          gin.Default(),
		Addr:            addr,
		ShutdownTimeout: defaultShutdownTimeout,
		health:          health,
	}
	s.Engine.GET("/health", s.handleHealth)
	s.Engine.GET("/metrics", gin.WrapH(rec.Handler()))
	return s
}

// Mount registers each handler's routes on the engine.
func (s *Server) Mount(routes ...Routes) {
	for _, r := range routes {
		r.RegisterRoutes(s.Engine)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, HealthStatus{Status: "healthy", RunStore: "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		slog.Error("[Server] Run store unreachable", "error", err)
		c.JSON(http.StatusServiceUnavailable, HealthStatus{
			Status:   "unhealthy",
			RunStore: "unreachable",
			Error:    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, HealthStatus{Status: "healthy", RunStore: "connected"})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Engine}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("[Server] Shutting down", "timeout", s.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("[Server] Forced shutdown", "error", err)
		}
	}()

	slog.Info("[Server] Listening", "address", s.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}
