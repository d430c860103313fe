package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/trackline/server/internal/metrics"
)

// Metrics records request counts and latency per method, route pattern, and
// status. Pass the route pattern, not the raw path, so ULIDs do not blow up
// label cardinality.
func Metrics(pattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w}

			next.ServeHTTP(rw, r)

			status := rw.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}
