package middleware

import (
	"net/http"
	"time"
)

type httpObserver interface {
	ObserveHTTP(method string, route string, status int, duration time.Duration)
}

// Requests not matched by router are counted under this route to keep labels bounded
const unmatchedRoute = "unmatched"

// Count requests and their duration per route
// Route is the pattern matched by http.ServeMux, so it has to wrap the mux itself
func MetricsMiddleware(o httpObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := newLogWriter(w)

			next.ServeHTTP(lw, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			o.ObserveHTTP(r.Method, route, lw.data.responseStatus, time.Since(start))
		})
	}
}
