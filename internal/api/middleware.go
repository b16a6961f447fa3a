package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Middleware wraps an http.Handler, the same function-type shape the
// teacher repo's middleware package builds its chain from.
type Middleware func(http.Handler) http.Handler

// requestIDMiddleware stamps each request with a UUID, echoed back as
// X-Request-Id and stored on the request context, where loggingMiddleware
// adds it to the request's log line so a client report can be correlated
// to that line. Ingestion tasks do not carry the id, so the worker pool's
// log lines do not include it.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// corsMiddleware stamps every response with the permissive CORS headers
// spec §6 requires and answers preflight OPTIONS requests directly,
// matching the Access-Control-Allow-* headers _send_compressed and
// do_OPTIONS set in the Python original.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Range,Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs one line per request, grounded on the teacher
// repo's loggingMiddleware shape.
func loggingMiddleware(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID(r)),
				zap.Duration("latency", time.Since(start)))
		})
	}
}

// requireSession rejects any request that needs an open vault when none
// is unlocked, spec §7's "AuthFailed (401): ... any request requiring a
// manager when no vault is open" — a deliberate tightening of the
// original's require_manager, which answered 400 for the same condition.
func requireSession(s *Server, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.currentSession(); err != nil {
				writeError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
