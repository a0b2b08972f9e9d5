package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics and an access log line.
func (s *Server) instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		start := time.Now()
		next(rw, r)
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
		slog.Info("request handled",
			"method", r.Method, "path", r.URL.Path,
			"status", rw.statusCode, "duration", duration, "client", clientIP(r))
	}
}

// rateLimit rejects clients over their request budget.
func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter == nil {
			next(w, r)
			return
		}
		if err := s.rateLimiter.Allow(clientIP(r)); err != nil {
			rateLimitHits.Inc()
			s.writeRateLimitError(w, err)
			return
		}
		next(w, r)
	}
}

func (s *Server) writeRateLimitError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	var rle *RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds()+1)))
	}
	w.WriteHeader(http.StatusTooManyRequests)
	if encErr := json.NewEncoder(w).Encode(map[string]string{
		"error":   "rate_limit_exceeded",
		"message": err.Error(),
	}); encErr != nil {
		slog.Error("failed to encode rate limit response", "error", encErr)
	}
}

// clientIP extracts the client address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
