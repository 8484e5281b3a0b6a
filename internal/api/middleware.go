package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sunspool/sunspool/internal/auth"
)

type contextKey int

const deviceIDKey contextKey = iota

// DeviceID returns the authenticated device id stored by AuthMiddleware.
func DeviceID(r *http.Request) string {
	id, _ := r.Context().Value(deviceIDKey).(string)
	return id
}

// AuthMiddleware returns an http.Handler that resolves the Bearer token
// in the Authorization header to a device id via the registry. Failures
// return 401 with WWW-Authenticate: Bearer and never log token material.
func AuthMiddleware(registry *auth.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Missing Authorization header.")
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			unauthorized(w, "Invalid Authorization header format.")
			return
		}

		deviceID, ok := registry.Verify(authHeader[len(prefix):])
		if !ok {
			unauthorized(w, "Invalid device token.")
			return
		}

		ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteDetail(w, http.StatusUnauthorized, detail)
}

// RequestBodyLimitMiddleware enforces a max request body size for downstream handlers.
func RequestBodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r != nil && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogMiddleware logs each request with a generated request id,
// method, path, status, and duration.
func RequestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Printf("[api] %s %s %s -> %d (%s)", requestID, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
