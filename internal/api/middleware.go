package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/tplsync/internal/metrics"
)

// loggingMiddleware logs each request with the chi request id
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := s.logger.Info
		if ww.Status() >= http.StatusInternalServerError {
			level = s.logger.Warn
		}
		level("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// apiKey returns the key a client presented: a bearer token, a bare
// Authorization value or the X-API-Key header, in that order
func apiKey(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return auth
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// validKey compares in constant time; an empty key never matches
func validKey(got, want string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// authMiddleware rejects requests without the configured API key. With no
// key configured the API is open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" || validKey(apiKey(r), s.config.APIKey) {
			next.ServeHTTP(w, r)
			return
		}

		s.logger.Warn("rejected API request",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		metrics.IncAPIErrors("unauthorized")
		s.sendError(w, http.StatusUnauthorized, "Unauthorized")
	})
}
