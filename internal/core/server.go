// Package core provides the HTTP chassis for the Storm Surge middleware.
// It creates a chi router and enforces cross-cutting concerns -- panic
// recovery, request correlation, logging, and error shaping -- before
// requests reach the webhook and status handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stormsurge/internal/config"
)

// RouteRegistrar mounts a group of domain routes onto the router. Handler
// packages provide registrars and the application entry point installs them;
// this indirection avoids an import cycle between core and the handlers.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the chassis dependencies, allowing injection during
// testing and distinct configuration per environment.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// RouteRegistrars are mounted by MountRoutes, in order.
	RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the router for mounting.
// The caller is responsible for appending RouteRegistrars and calling
// MountRoutes after construction.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
