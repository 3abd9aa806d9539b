package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

// NewLoggingMiddleware writes one line per request. Long polls on a checkout
// session are logged like any other request once they return.
func NewLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			endpoint := monitoring.EndpointName(r.URL.Path)
			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"endpoint", endpoint,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.Error("HTTP request", fields...)
			case endpoint == "health" || endpoint == "metrics":
				log.Debug("HTTP request", fields...)
			default:
				log.Info("HTTP request", fields...)
			}
		})
	}
}
