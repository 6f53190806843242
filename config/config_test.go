package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"MINICHAT_SERVER_URL", "MINICHAT_SOCKET_URL", "MINICHAT_CRED_PATH", "MINICHAT_SCROLL_THRESHOLD",
	"MINICHAT_ANCHOR_LAST_SEEN", "MINICHAT_REMOTE_TIMEOUT", "MINICHAT_METRICS_ADDR",
	"MINICHAT_RELAY_ADDR", "MINICHAT_RELAY_DB", "JWT_SECRET", "JWT_EXPIRES_IN",
}

// clearEnv unsets every key for the test, restoring afterwards.
func clearEnv(t *testing.T) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			k := k
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			k := k
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	conf, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000", conf.Client.ServerURL)
	assert.Equal(t, "ws://127.0.0.1:8000/ws", conf.Client.SocketURL)
	assert.Equal(t, 120.0, conf.Client.ScrollThreshold)
	assert.False(t, conf.Client.AnchorLastSeen)
	assert.Equal(t, 10*time.Second, conf.Client.RemoteTimeout)
	assert.Equal(t, "127.0.0.1:8000", conf.Relay.Addr)
	assert.Equal(t, 24*time.Hour, conf.Relay.TokenTTL)
	assert.Empty(t, conf.Relay.JWTSecret)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"MINICHAT_SERVER_URL=https://chat.example.com/app\n"+
			"MINICHAT_SCROLL_THRESHOLD=80\n"+
			"MINICHAT_ANCHOR_LAST_SEEN=true\n"+
			"JWT_SECRET=s3cret\n"), 0600))

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/app/ws", conf.Client.SocketURL)
	assert.Equal(t, 80.0, conf.Client.ScrollThreshold)
	assert.True(t, conf.Client.AnchorLastSeen)
	assert.Equal(t, "s3cret", conf.Relay.JWTSecret)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	os.Setenv("MINICHAT_REMOTE_TIMEOUT", "soon")
	os.Setenv("MINICHAT_SCROLL_THRESHOLD", "far")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINICHAT_REMOTE_TIMEOUT")
	assert.Contains(t, err.Error(), "MINICHAT_SCROLL_THRESHOLD")

	clearEnv(t)
	os.Setenv("MINICHAT_SCROLL_THRESHOLD", "-1")
	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	clearEnv(t)
	os.Setenv("MINICHAT_SERVER_URL", "ftp://host")
	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestSocketURL(t *testing.T) {
	u, err := SocketURL("http://localhost:5000/")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:5000/ws", u)

	_, err = SocketURL("://bad")
	assert.Error(t, err)
}
