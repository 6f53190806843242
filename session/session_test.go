package session

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/minichat/auth"
	"github.com/mqy/minichat/credstore"
	"github.com/mqy/minichat/relay"
	"github.com/mqy/minichat/store"
)

const testSecret = "test-secret"

type testEnv struct {
	relay *relay.Relay
	srv   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	r := relay.New(&auth.JWTClient{Secret: testSecret}, s, func(uid string) (string, error) {
		return auth.NewToken(testSecret, uid, time.Hour)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		r.Close()
		srv.Close()
		_ = s.Close()
	})
	return &testEnv{relay: r, srv: srv}
}

func (e *testEnv) conf() *Config {
	return &Config{
		ServerURL:     e.srv.URL,
		SocketURL:     "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws",
		RemoteTimeout: 2 * time.Second,
		TypingDelay:   100 * time.Millisecond,
	}
}

func openCreds(t *testing.T) *credstore.Store {
	creds, err := credstore.Open(filepath.Join(t.TempDir(), "cred.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = creds.Close() })
	return creds
}

func (e *testEnv) login(t *testing.T, name string) *Session {
	s := New(e.conf(), openCreds(t))
	require.NoError(t, s.Login(context.Background(), name+"@example.com", "pw"))
	t.Cleanup(func() { _ = s.Logout() })
	return s
}

func TestLoginRestoreLogout(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	creds := openCreds(t)

	s := New(e.conf(), creds)
	require.NoError(t, s.Login(ctx, "alice@example.com", "pw"))
	assert.Equal(t, "alice", s.UserID())
	assert.ErrorIs(t, s.Login(ctx, "alice@example.com", "pw"), ErrLoggedIn)

	c, err := creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "alice", c.UserID)
	assert.NotEmpty(t, c.Token)

	// a restarted client resumes from the stored token
	assert.Equal(t, "alice", s.Close())
	assert.Empty(t, s.UserID())
	s2 := New(e.conf(), creds)
	require.NoError(t, s2.Restore(ctx))
	assert.Equal(t, "alice", s2.UserID())

	require.NoError(t, s2.Logout())
	assert.Empty(t, s2.UserID())
	assert.Equal(t, 0, s2.ListenerCount())
	_, err = creds.Load()
	assert.ErrorIs(t, err, credstore.ErrNotFound)
	assert.ErrorIs(t, s2.Restore(ctx), ErrNotLoggedIn)

	_, err = s2.OpenChat(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, s.Logout())
}

func TestRestoreExpiredToken(t *testing.T) {
	e := newTestEnv(t)
	creds := openCreds(t)

	token, err := auth.NewToken(testSecret, "alice", -time.Minute)
	require.NoError(t, err)
	require.NoError(t, creds.Save(&credstore.Credentials{Token: token, UserID: "alice"}))

	s := New(e.conf(), creds)
	assert.ErrorIs(t, s.Restore(context.Background()), ErrTokenExpired)
	_, err = creds.Load()
	assert.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestRestoreRejectedToken(t *testing.T) {
	e := newTestEnv(t)
	creds := openCreds(t)

	token, err := auth.NewToken("another-secret", "alice", time.Hour)
	require.NoError(t, err)
	require.NoError(t, creds.Save(&credstore.Credentials{Token: token, UserID: "alice"}))

	s := New(e.conf(), creds)
	assert.ErrorIs(t, s.Restore(context.Background()), ErrNotLoggedIn)
	assert.Empty(t, s.UserID())
	_, err = creds.Load()
	assert.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestPresenceLifecycle(t *testing.T) {
	e := newTestEnv(t)
	alice := e.login(t, "alice")
	bob := e.login(t, "bob")

	assert.Eventually(t, func() bool { return alice.Presence().IsOnline("bob") }, 2*time.Second, 10*time.Millisecond)
	// bob learns about alice from the snapshot pushed on connect
	assert.Eventually(t, func() bool { return bob.Presence().IsOnline("alice") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.Logout())
	assert.Eventually(t, func() bool { return !alice.Presence().IsOnline("bob") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.Logout())
	assert.Empty(t, alice.Presence().List())
	assert.Equal(t, 0, alice.ListenerCount())
}
