package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

type AuthConfig struct {
	Enabled     bool
	APIPassword string
	APIKeyEnv   string
	PublicPaths []string
}

// Auth requires "Authorization: Bearer <key>" on every path outside
// PublicPaths. The key is APIPassword, or the value of APIKeyEnv when the
// password is empty. With no key configured every request passes.
func Auth(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled || isPublicPath(r.URL.Path, config.PublicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			expectedKey := config.APIPassword
			if expectedKey == "" && config.APIKeyEnv != "" {
				expectedKey = os.Getenv(config.APIKeyEnv)
			}
			if expectedKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expectedKey)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="maildispatch"`)
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string, public []string) bool {
	for _, p := range public {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}
