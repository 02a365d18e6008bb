package api

import (
	"context"
	"net/http"
	"time"
)

// APITracker receives one sample per handled request.
type APITracker interface {
	RecordAPIMetrics(ctx context.Context, tenantID, endpoint, method string, status int, elapsed time.Duration)
}

// statusRecorder captures the response code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WithAPIKey enforces API key authentication on every request.
//
// Behaviour matches the usual pass-through rules: if mode != "apikey" or
// key == "", all requests are allowed. Otherwise the header value must equal
// key, and a missing or wrong key gets 401 before the handler runs.
func WithAPIKey(next http.Handler, mode, header, key string) http.Handler {
	if mode != "apikey" || key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(header) != key {
			jsonErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithInstrumentation records latency, request, and error samples for every
// request through the same ingestion path as any other metric, so API traffic
// itself can trigger alert rules. A nil tracker disables instrumentation.
func WithInstrumentation(next http.Handler, tracker APITracker, tenant string) http.Handler {
	if tracker == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		tracker.RecordAPIMetrics(r.Context(), tenant, r.URL.Path, r.Method, rec.status, time.Since(start))
	})
}
