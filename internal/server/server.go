// Package server exposes upload sessions over HTTP for a browser front end.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pixelkit/bgremover/pkg/errors"
)

// Server wraps the HTTP listener and its handler
type Server struct {
	httpServer *http.Server
	handler    *Handler
}

// New builds the router. Remote calls have no deadline, so the server sets
// no write timeout either.
func New(addr string, h *Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", h.HealthCheck)

	// Routes that change state get a session, creating one if needed
	write := router.Group("/api", h.WithSession)
	{
		write.POST("/upload", h.UploadImage)
		write.POST("/remove", h.RemoveBackground)
		write.PUT("/border", h.UpdateBorder)
		write.POST("/border/apply", h.ApplyBorder)
	}

	read := router.Group("/", h.LookupSession)
	{
		read.GET("/blob/:id", h.GetBlob)
		read.GET("/api/session", h.GetSession)
		read.DELETE("/api/session", h.DeleteSession)
		read.GET("/api/download", h.Download)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1 MB
		},
		handler: h,
	}
}

// Handler returns the router, for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_start", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	go s.expireSessions(ctx)

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("http_server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer s.handler.sessions.closeAll()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	return nil
}

// expireSessions sweeps idle sessions until ctx is canceled
func (s *Server) expireSessions(ctx context.Context) {
	interval := sweepInterval(s.handler.sessions.ttl)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.handler.sessions.sweep(); n > 0 {
				slog.Info("http_sessions_swept", "expired", n, "sessions", s.handler.sessions.len())
			}
		}
	}
}

// sweepInterval is half the ttl, between one second and one minute
func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return max(min(ttl/2, time.Minute), time.Second)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
