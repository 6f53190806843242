package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTClient(t *testing.T) {
	token, err := NewToken("s3cret", "u1", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	uid, err := (&JWTClient{Secret: "s3cret"}).Auth(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = (&JWTClient{Secret: "other"}).Auth(r)
	assert.Error(t, err)

	r = httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	uid, err = (&JWTClient{Secret: "s3cret"}).Auth(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = (&JWTClient{Secret: "s3cret"}).Auth(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Error(t, err)
}

func TestInspectToken(t *testing.T) {
	token, err := NewToken("s3cret", "u1", time.Hour)
	require.NoError(t, err)

	claims, err := InspectToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(time.Now().Add(2*time.Hour)))

	_, err = InspectToken("garbage")
	assert.Error(t, err)
}

func TestMockClient(t *testing.T) {
	c := &MockClient{}
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	_, err := c.Auth(r)
	assert.Error(t, err)

	r.AddCookie(&http.Cookie{Name: "x-uid", Value: "u7"})
	uid, err := c.Auth(r)
	require.NoError(t, err)
	assert.Equal(t, "u7", uid)

	r.Header.Set("Authorization", "Bearer u8")
	uid, err = c.Auth(r)
	require.NoError(t, err)
	assert.Equal(t, "u8", uid)
}
