package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware wraps handlers in otelhttp spans. Liveness probes and the
// long-lived websocket upgrade are excluded to keep trace volume useful.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	skip := map[string]bool{"/healthz": true, "/ws": true}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !skip[r.URL.Path]
			}))
	}
}
