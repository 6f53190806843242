package auth

import (
	"fmt"
	"net/http"
)

// MockClient trusts the bearer token as the uid, or the `x-uid` cookie.
// For development only.
type MockClient struct {
	Client
}

func (c *MockClient) Auth(r *http.Request) (string, error) {
	uid := BearerToken(r)
	if uid == "" {
		if c, err := r.Cookie("x-uid"); err == nil {
			uid = c.Value
		}
	}

	if uid == "" {
		return "", fmt.Errorf("empty bearer token and x-uid cookie")
	}
	return uid, nil
}
