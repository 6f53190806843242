package auth

import (
	"net/http"
	"strings"
)

type Client interface {
	// Auth authenticate current user, return uid.
	Auth(r *http.Request) (string, error)
}

// BearerToken extracts the token from `Authorization: Bearer <token>`, falling
// back to the `token` query parameter.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
