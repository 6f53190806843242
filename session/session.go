package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mqy/minichat/api"
	"github.com/mqy/minichat/auth"
	"github.com/mqy/minichat/credstore"
	"github.com/mqy/minichat/presence"
	"github.com/mqy/minichat/socket"
	"github.com/mqy/minichat/wire"
)

var (
	ErrClosed       = errors.New("session: closed")
	ErrNotLoggedIn  = errors.New("session: not logged in")
	ErrLoggedIn     = errors.New("session: already logged in")
	ErrTokenExpired = errors.New("session: token expired")
	ErrPending      = errors.New("session: message not confirmed yet")
)

type Config struct {
	// ServerURL is the backend root, e.g. http://127.0.0.1:8000.
	ServerURL string
	// SocketURL is the websocket endpoint, e.g. ws://127.0.0.1:8000/ws.
	SocketURL string

	ScrollThreshold float64
	AnchorLastSeen  bool
	RemoteTimeout   time.Duration
	// TypingDelay overrides chat.StopTypingDelay.
	TypingDelay time.Duration
}

// Session is one authenticated user: the REST client, the socket manager and
// the presence set live as long as the login.
type Session struct {
	sync.Mutex

	conf     *Config
	api      *api.Client
	creds    *credstore.Store
	presence *presence.Store

	sockets       *socket.Manager
	presenceLease *socket.Lease
	user          string
	views         map[*ChatView]struct{}
}

func New(conf *Config, creds *credstore.Store) *Session {
	return &Session{
		conf:     conf,
		api:      api.NewClient(conf.ServerURL, ""),
		creds:    creds,
		presence: presence.NewStore(),
		views:    make(map[*ChatView]struct{}),
	}
}

// Login authenticates with email and password and persists the token.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if s.UserID() != "" {
		return ErrLoggedIn
	}
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if resp.Token == "" {
		return fmt.Errorf("session: login: empty token")
	}

	uid, err := s.userID(ctx, resp)
	if err != nil {
		return err
	}
	if err := s.creds.Save(&credstore.Credentials{Token: resp.Token, UserID: uid}); err != nil {
		return err
	}
	return s.start(ctx, resp.Token, uid)
}

func (s *Session) userID(ctx context.Context, resp *api.AuthResp) (string, error) {
	if resp.User != nil && resp.User.ID != "" {
		return resp.User.ID, nil
	}
	if claims, err := auth.InspectToken(resp.Token); err == nil && claims.UserID != "" {
		return claims.UserID, nil
	}
	me, err := s.api.Me(ctx)
	if err != nil {
		return "", err
	}
	return me.ID, nil
}

// Restore resumes the session of the stored token. An expired or rejected token
// is removed from the store.
func (s *Session) Restore(ctx context.Context) error {
	if s.UserID() != "" {
		return ErrLoggedIn
	}
	c, err := s.creds.Load()
	if errors.Is(err, credstore.ErrNotFound) {
		return ErrNotLoggedIn
	} else if err != nil {
		return err
	}

	// Opaque tokens are checked by the server only.
	if claims, err := auth.InspectToken(c.Token); err == nil && claims.Expired(time.Now()) {
		glog.Infof("session: stored token of %s expired", c.UserID)
		s.clearCreds()
		return ErrTokenExpired
	}

	s.api.SetToken(c.Token)
	me, err := s.api.Me(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			s.clearCreds()
			s.api.SetToken("")
			return fmt.Errorf("%w: %v", ErrNotLoggedIn, err)
		}
		return err
	}

	uid := me.ID
	if uid == "" {
		uid = c.UserID
	}
	return s.start(ctx, c.Token, uid)
}

// start initializes presence and connects the socket, holding a lease for the
// lifetime of the session.
func (s *Session) start(ctx context.Context, token, uid string) error {
	s.Lock()
	defer s.Unlock()
	if s.sockets != nil {
		return ErrLoggedIn
	}

	s.api.SetToken(token)
	s.presence.Start()
	sockets := socket.NewManager(&socket.Config{
		URL:           s.conf.SocketURL,
		Token:         token,
		Remote:        s.api,
		RemoteTimeout: s.conf.RemoteTimeout,
	})

	lease, err := sockets.Acquire(ctx,
		socket.Listen(wire.EventUserOnline, s.onPresence(true)),
		socket.Listen(wire.EventUserOffline, s.onPresence(false)),
	)
	if err != nil {
		s.presence.Stop()
		sockets.Close()
		if errors.Is(err, socket.ErrUnauthorized) {
			s.clearCreds()
		}
		return err
	}

	s.sockets = sockets
	s.presenceLease = lease
	s.user = uid
	glog.Infof("session: %s logged in", uid)
	return nil
}

func (s *Session) onPresence(online bool) socket.Handler {
	return func(f *wire.Frame) {
		var p wire.PresenceEvent
		if err := f.Bind(&p); err != nil || p.UserID == "" {
			glog.Errorf("session: bad `%s` payload: %s", f.Event, f.Data)
			return
		}
		if online {
			s.presence.SetOnline(p.UserID)
		} else {
			s.presence.SetOffline(p.UserID)
		}
	}
}

// Logout closes the session and forgets the stored token.
func (s *Session) Logout() error {
	uid := s.Close()
	glog.Infof("session: %s logged out", uid)
	return s.creds.Clear()
}

// Close closes open chat views and tears down presence and the socket. The
// stored token is kept for Restore. Returns the user that was logged in.
func (s *Session) Close() string {
	s.Lock()
	views := make([]*ChatView, 0, len(s.views))
	for v := range s.views {
		views = append(views, v)
	}
	s.Unlock()

	for _, v := range views {
		v.Close()
	}

	s.Lock()
	if s.presenceLease != nil {
		s.presenceLease.Release()
		s.presenceLease = nil
	}
	s.presence.Stop()
	if s.sockets != nil {
		s.sockets.Close()
		s.sockets = nil
	}
	uid := s.user
	s.user = ""
	s.Unlock()

	s.api.SetToken("")
	return uid
}

func (s *Session) clearCreds() {
	if err := s.creds.Clear(); err != nil {
		glog.Errorf("session: clear credentials: %v", err)
	}
}

// OpenChat mounts the conversation with peer.
func (s *Session) OpenChat(ctx context.Context, peer string) (*ChatView, error) {
	return s.openChat(ctx, peer, s.api)
}

func (s *Session) openChat(ctx context.Context, peer string, history IHistory) (*ChatView, error) {
	if peer == "" {
		return nil, fmt.Errorf("session: empty peer")
	}
	s.Lock()
	sockets, me := s.sockets, s.user
	s.Unlock()
	if sockets == nil {
		return nil, ErrNotLoggedIn
	}

	v := newChatView(me, peer, history, &viewOptions{
		threshold:      s.conf.ScrollThreshold,
		anchorLastSeen: s.conf.AnchorLastSeen,
		typingDelay:    s.conf.TypingDelay,
	})
	lease, err := sockets.Acquire(ctx, v.listeners()...)
	if err != nil {
		return nil, err
	}
	v.onClose = s.forget

	s.Lock()
	s.views[v] = struct{}{}
	s.Unlock()

	v.start(lease)
	return v, nil
}

func (s *Session) forget(v *ChatView) {
	s.Lock()
	delete(s.views, v)
	s.Unlock()
}

// UserID is the logged in user, or "".
func (s *Session) UserID() string {
	s.Lock()
	defer s.Unlock()
	return s.user
}

func (s *Session) API() *api.Client {
	return s.api
}

func (s *Session) Presence() *presence.Store {
	return s.presence
}

// ListenerCount is the number of socket listeners attached, 0 when logged out.
func (s *Session) ListenerCount() int {
	s.Lock()
	defer s.Unlock()
	if s.sockets == nil {
		return 0
	}
	return s.sockets.ListenerCount()
}
