package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yuzvak/checkout-service/internal/infrastructure/http/middleware"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
)

const (
	requestTimeout = 30 * time.Second
	supportPrefix  = "/api/support"
)

func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(s.logger))
	r.Use(middleware.NewRecoveryMiddleware(s.logger))
	r.Use(s.corsMiddleware)

	if s.exposeMetrics {
		r.Handle("/metrics", monitoring.Handler())
	}
	r.Get("/health", s.health.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware())

		r.Route("/api/checkout/sessions", func(r chi.Router) {
			r.With(chimiddleware.Timeout(requestTimeout)).Post("/", s.checkout.HandleStart)
			r.Route("/{sessionID}", func(r chi.Router) {
				// GET may long-poll; its wait is bounded by the command.
				r.Get("/", s.checkout.HandleGet)
				r.Group(func(r chi.Router) {
					r.Use(chimiddleware.Timeout(requestTimeout))
					r.Delete("/", s.checkout.HandleClose)
					r.Post("/confirm", s.checkout.HandleConfirm)
					r.Post("/refresh", s.checkout.HandleRefresh)
					r.Post("/resolve", s.checkout.HandleResolve)
				})
			})
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", s.notifications.HandleList)
			r.Post("/", s.notifications.HandlePublish)
		})
	})

	if s.support != nil && s.exposeSupport {
		r.Mount(supportPrefix, s.supportRoutes())
	}

	handler := monitoring.WrapHandler(r)
	return otelhttp.NewHandler(handler, "checkout-bff")
}

// SupportHandler serves /api/support for an internal listener. It returns nil
// when no support handler is configured.
func (s *Server) SupportHandler() http.Handler {
	if s.support == nil {
		return nil
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewLoggingMiddleware(s.logger))
	r.Use(middleware.NewRecoveryMiddleware(s.logger))
	r.Mount(supportPrefix, s.supportRoutes())
	return r
}

func (s *Server) supportRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(requestTimeout))
	r.Get("/reconciliations", s.support.HandleListReconciliations)
	r.Get("/sessions/{sessionID}/transitions", s.support.HandleSessionHistory)
	return r
}

// corsMiddleware opens the shopper API to browsers. Support routes are never
// shared cross-origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, supportPrefix+"/") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-User-Email, X-User-Sub")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
