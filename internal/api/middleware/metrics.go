package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fluxhive/fluxhive/internal/monitoring/metrics"
)

// Metrics records request latency per route template and status. The mux
// route template is used instead of the raw path to keep label cardinality
// bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}

		metrics.RequestDuration.
			WithLabelValues(r.Method, path, fmt.Sprintf("%d", rw.status)).
			Observe(time.Since(start).Seconds())
	})
}
