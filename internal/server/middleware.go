package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Identity headers set by the fronting identity proxy. The service never
// talks to the auth provider itself.
const (
	headerUserID    = "X-User-Id"
	headerUserEmail = "X-User-Email"
)

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// identityMiddleware gates user-scoped routes. Waitlist and feedback are
// public, and /internal is scanner territory with its own token check.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/api/waitlist" || path == "/api/feedback" ||
			strings.HasPrefix(path, "/internal/") {
			next.ServeHTTP(w, r)
			return
		}

		userID := r.Header.Get(headerUserID)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		// Mirror the provider's subject into our users table so project
		// rows have something to reference.
		if email := r.Header.Get(headerUserEmail); email != "" {
			if err := s.db.UpsertUser(userID, email); err != nil {
				slog.Error("user upsert failed", "user", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// ingestAuth wraps the /internal routes with the shared scanner token.
func (s *Server) ingestAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.cfg.Scanner.IngestToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Scanner.IngestToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid ingest token")
			return
		}
		next(w, r)
	}
}

func callerID(r *http.Request) string {
	return r.Header.Get(headerUserID)
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
