// CLAUDE:SUMMARY HTTP middleware for the tabkeeper control port — headers, body cap, trace ids, bearer auth, rate limiting.
// Package shield provides the HTTP security middleware applied to the
// tabkeeper control port: security headers, request body limits, trace
// ids, bearer-token authentication, and per-IP rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders())
//	r.Use(shield.MaxBody(1 << 20))
//	r.Use(shield.TraceID)
//	r.Use(shield.BearerAuth(cfg.Auth.Token, cfg.Auth.TokenHash))
//	r.Use(shield.NewRateLimiter(db).Middleware)
package shield

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/hazyhaar/tabkeeper/internal/idgen"
)

type contextKey string

// traceIDKey is the context key for the per-request trace id.
const traceIDKey contextKey = "shield_trace_id"

// Trace ids are short-lived correlation keys, not global identifiers.
var newTraceID = idgen.NanoID(16)

// GetTraceID returns the request trace id, or "" outside a traced request.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// TraceID assigns each request a trace id, exposes it on the response as
// X-Trace-Id, and stores it in the request context for log correlation.
// An inbound X-Trace-Id header is honoured so callers can stitch traces.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Trace-Id")
		if id == "" || len(id) > 64 {
			id = newTraceID()
		}
		w.Header().Set("X-Trace-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), traceIDKey, id)))
	})
}

// SecurityHeaders sets the response headers appropriate for a JSON control
// API: no sniffing, no framing, no caching of session state.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBody caps the request body at maxBytes for every request carrying one.
// Oversized bodies surface as a read error in the handler's decoder.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength != 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
