package monitoring

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// WrapHandler records count, latency and in-flight gauges per endpoint.
func WrapHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := EndpointName(r.URL.Path)
		inFlight := HTTPRequestsInFlight.WithLabelValues(endpoint)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		HTTPRequestDuration.WithLabelValues(endpoint, r.Method, code).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(endpoint, r.Method, code).Inc()
	})
}

// EndpointName keeps label cardinality bounded: session ids in the
// path collapse into the route they belong to.
func EndpointName(path string) string {
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "api/checkout/sessions":
		return "checkout_start"
	case strings.HasPrefix(path, "api/checkout/sessions/"):
		switch {
		case strings.HasSuffix(path, "/confirm"):
			return "checkout_confirm"
		case strings.HasSuffix(path, "/refresh"):
			return "checkout_refresh"
		case strings.HasSuffix(path, "/resolve"):
			return "checkout_resolve"
		default:
			return "checkout_session"
		}
	case strings.HasPrefix(path, "api/support/reconciliations"):
		return "reconciliations"
	case strings.HasPrefix(path, "api/support/sessions/"):
		return "session_history"
	case strings.HasPrefix(path, "api/notifications"):
		return "notifications"
	case strings.HasPrefix(path, "metrics"):
		return "metrics"
	case strings.HasPrefix(path, "health"):
		return "health"
	default:
		return "unknown"
	}
}
