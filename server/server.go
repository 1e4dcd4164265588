// Package server runs the ops HTTP surface: health, metrics and version.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/mynah/internal/profile"
	"github.com/hrygo/mynah/internal/version"
	"github.com/hrygo/mynah/metrics"
	"github.com/hrygo/mynah/store"
)

// Server is the ops HTTP server.
type Server struct {
	e       *echo.Echo
	profile *profile.Profile
	store   *store.Store
}

// NewServer wires the routes.
func NewServer(p *profile.Profile, st *store.Store, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Gzip())

	s := &Server{e: e, profile: p, store: st}

	e.GET("/healthz", s.healthz)
	e.GET("/version", s.getVersion)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	return s
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.profile.Port)
	slog.Info("ops server listening", "addr", addr)
	return s.e.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down ops server", "error", err)
	}
}

func (s *Server) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"version": version.String(),
		"mode":    s.profile.Mode,
	})
}
