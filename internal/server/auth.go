package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/pdfrag/internal/logging"
)

// bearerRealm is the WWW-Authenticate realm for /v1 routes.
const bearerRealm = `Bearer realm="pdfrag"`

// requireBearer returns middleware that admits only requests carrying
// "Authorization: Bearer <apiKey>". An empty apiKey disables the check.
// Tokens are compared as SHA-256 digests in constant time and are never
// logged.
func requireBearer(apiKey string) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	want := sha256.Sum256([]byte(apiKey))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				deny(w, r, bearerRealm, "missing bearer token")
				return
			}
			got := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				deny(w, r, bearerRealm+`, error="invalid_token"`, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken parses an Authorization header value. The scheme is matched
// case-insensitively; an empty token is treated as absent.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// deny writes a 401 with the given challenge.
func deny(w http.ResponseWriter, r *http.Request, challenge, msg string) {
	logging.FromContext(r.Context()).Warn("auth: request denied",
		slog.String("path", r.URL.Path),
		slog.String("reason", msg),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: msg})
}
