package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoUserID = errors.New("token: no user id claim")

// Claims of the session token. The backend puts the user id in `id`.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// Expired reports whether the token has an expiry before now.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time)
}

func NewToken(secret, uid string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "minichat",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies an HMAC signed token.
func ParseToken(secret, token string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" {
		return nil, ErrNoUserID
	}
	return claims, nil
}

// InspectToken decodes the claims without verifying the signature. Clients
// don't hold the signing key; they use this to read the user id and to skip
// dialing with an expired token.
func InspectToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// JWTClient authenticates requests bearing a token signed with Secret.
type JWTClient struct {
	Secret string
}

func (c *JWTClient) Auth(r *http.Request) (string, error) {
	token := BearerToken(r)
	if token == "" {
		return "", fmt.Errorf("missing bearer token")
	}
	claims, err := ParseToken(c.Secret, token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
