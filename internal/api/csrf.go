package api

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"
)

const (
	csrfCookieName = "ptymux-csrf-token"
	csrfHeaderName = "X-CSRF-Token"
)

// CSRFMiddleware issues a token cookie scoped to path and requires it to be
// echoed in a header on state-changing requests.
func CSRFMiddleware(path string) func(http.Handler) http.Handler {
	if path == "" {
		path = "/"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := r.Cookie(csrfCookieName)
			if err != nil || token.Value == "" {
				token = &http.Cookie{
					Name:     csrfCookieName,
					Value:    generateCSRFToken(),
					Path:     path,
					SameSite: http.SameSiteStrictMode,
				}
				http.SetCookie(w, token)
			}

			if isStateChangingMethod(r.Method) && r.Header.Get(csrfHeaderName) != token.Value {
				writeError(w, http.StatusForbidden, "invalid CSRF token", "csrf header mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func generateCSRFToken() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(buf[:])
}
