package middleware

import (
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/yuzvak/checkout-service/internal/infrastructure/http/response"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

// NewRecoveryMiddleware turns a handler panic into a 500 for that request
// only; the checkout session it touched keeps running on its own loop.
func NewRecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				endpoint := monitoring.EndpointName(r.URL.Path)
				monitoring.HTTPPanicsTotal.WithLabelValues(endpoint).Inc()
				log.Error("Handler panicked",
					"panic", rec,
					"endpoint", endpoint,
					"method", r.Method,
					"request_id", chimiddleware.GetReqID(r.Context()),
					"stack", string(debug.Stack()),
				)
				response.WriteError(w, http.StatusInternalServerError, response.StatusInternalError, "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
