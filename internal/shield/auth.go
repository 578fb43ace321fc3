package shield

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BearerAuth returns middleware enforcing an Authorization: Bearer token.
// tokenHash (a bcrypt hash) wins over token (a plain secret, compared in
// constant time). With both empty the middleware passes everything through
// — the daemon is open, as it usually is on loopback.
// Health checks bypass the requirement.
func BearerAuth(token, tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" && tokenHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			presented, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			if tokenHash != "" {
				if bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(presented)) != nil {
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
					return
				}
			} else if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HashToken produces a bcrypt hash suitable for the auth.token_hash config
// field. Used by `tabkeeper -hash-token`.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
