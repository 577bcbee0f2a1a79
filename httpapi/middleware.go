package httpapi

import (
	"net/http"
	"time"

	"github.com/hafiz-io/hafiz/stats"
)

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// withStats records request count/latency by operation (the label is the
// request's HTTP method) and status class, per the stats package's
// Registry.
func withStats(next http.Handler, reg *stats.Registry, now func() time.Time) http.Handler {
	if reg == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		class := "2xx"
		switch {
		case rec.status >= 500:
			class = "5xx"
		case rec.status >= 400:
			class = "4xx"
		case rec.status >= 300:
			class = "3xx"
		}
		reg.ObserveRequest(r.Method, class, now().Sub(start))
	})
}
