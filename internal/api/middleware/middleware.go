// Package middleware provides the HTTP cross-cutting layers: request logging,
// panic recovery, request IDs, and materialization of the externally
// authenticated principal. The reconciliation core never inspects HTTP state;
// the principal is handed to it as an explicit argument.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger adds structured logging to HTTP requests.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// Recovery recovers from panics and returns a 500 error.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("Panic recovered")

					WriteError(w, http.StatusInternalServerError, "internal", "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RequestID adds a unique request ID to the context and response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Principal is the authenticated caller as established by the upstream auth
// layer. The gateway strips these headers from external traffic and re-adds
// them after validating the session, so their presence is trusted here.
type Principal struct {
	// Kind is "merchant" or "admin".
	Kind string
	// MerchantID is set for merchant principals.
	MerchantID string
}

// IsAdmin reports whether the principal may act across merchants.
func (p Principal) IsAdmin() bool { return p.Kind == "admin" }

// RequirePrincipal rejects API requests that carry no authenticated principal.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind := r.Header.Get("X-Auth-Kind")
		switch kind {
		case "admin":
			ctx := context.WithValue(r.Context(), principalKey, Principal{Kind: "admin"})
			next.ServeHTTP(w, r.WithContext(ctx))
		case "merchant":
			merchantID := r.Header.Get("X-Auth-Merchant")
			if merchantID == "" {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Merchant principal without merchant id")
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, Principal{Kind: "merchant", MerchantID: merchantID})
			next.ServeHTTP(w, r.WithContext(ctx))
		default:
			WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		}
	})
}

// PrincipalFrom extracts the request's principal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type contextKey string

const (
	requestIDKey contextKey = "requestID"
	principalKey contextKey = "principal"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a structured JSON error carrying the error kind and a
// human-readable message, never raw storage detail.
func WriteError(w http.ResponseWriter, status int, kind, message string) {
	WriteJSON(w, status, map[string]string{"error": message, "kind": kind})
}
