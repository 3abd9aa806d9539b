package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/yuzvak/checkout-service/internal/config"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/handlers"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

type Handlers struct {
	Health        *handlers.HealthHandler
	Checkout      *handlers.CheckoutHandler
	Notifications *handlers.NotificationHandler
	// Support is optional.
	Support *handlers.SupportHandler
}

type Server struct {
	server        *http.Server
	logger        *logger.Logger
	exposeMetrics bool
	exposeSupport bool

	health        *handlers.HealthHandler
	checkout      *handlers.CheckoutHandler
	notifications *handlers.NotificationHandler
	support       *handlers.SupportHandler
}

func NewServer(cfg config.ServerConfig, h Handlers, logger *logger.Logger) *Server {
	s := &Server{
		logger:        logger,
		exposeMetrics: cfg.MetricsAddr == "",
		exposeSupport: cfg.MetricsAddr == "" && cfg.ExposeSupport,
		health:        h.Health,
		checkout:      h.Checkout,
		notifications: h.Notifications,
		support:       h.Support,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("Starting HTTP server", "address", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
