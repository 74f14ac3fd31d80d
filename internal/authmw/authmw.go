// Package authmw provides HTTP middleware for bearer token authentication
// of the helpdesk API.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// BearerToken returns middleware that requires an Authorization header
// carrying a Bearer token equal to token. Comparison is constant-time.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, bearerPrefix) {
				unauthorized(w, "missing or malformed authorization header")
				return
			}

			got := []byte(auth[len(bearerPrefix):])

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Optional returns BearerToken(token), or a pass-through middleware when
// token is empty so the API can run unauthenticated on trusted networks.
func Optional(token string) func(http.Handler) http.Handler {
	if token == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return BearerToken(token)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="helpdesk"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
}
