package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/survcast/pkg/metrics"
)

// MetricsMiddleware records request counts, durations and error classes for
// endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := float64(time.Since(start).Milliseconds())
		code := strconv.Itoa(sw.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, elapsed)

		if class, severity, failed := errorClass(sw.status); failed {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, class)
			metrics.RecordErrorByType(class, severity)
			metrics.RecordErrorLatency("http", class, elapsed)
		}
	}
}

// errorClass buckets a status for the error metrics. Shed load is reported
// apart from client mistakes.
func errorClass(status int) (class, severity string, failed bool) {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", "high", true
	case status == http.StatusTooManyRequests:
		return "rate_limit", "medium", true
	case status == http.StatusRequestEntityTooLarge:
		return "too_large", "low", true
	case status == http.StatusNotFound:
		return "not_found", "low", true
	case status >= http.StatusBadRequest:
		return "client_error", "medium", true
	}
	return "", "", false
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RateLimitMiddleware sheds requests beyond rps with burst using a single
// process-wide token bucket. A non-positive rps disables limiting.
func RateLimitMiddleware(next http.Handler, rps float64, burst int) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			metrics.RecordErrorByComponent("http", "rate_limited")
			writeError(w, http.StatusTooManyRequests, "rate_limited", NewKind("api.rate_limit", ErrRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}
