package socket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	socket_mock "github.com/mqy/minichat/socket/mock"
	"github.com/mqy/minichat/wire"
)

// testServer accepts connections bearing token `good` in the header only, records inbound frames
// and pushes frames to the newest connection.
type testServer struct {
	*httptest.Server

	conns    int32
	frames   chan *wire.Frame
	mu       sync.Mutex
	last     *websocket.Conn
	upgrader websocket.Upgrader
}

func newTestServer(t *testing.T) *testServer {
	s := &testServer{frames: make(chan *wire.Frame, 64)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" || r.URL.Query().Has("token") {
			http.Error(w, "forbidden", http.StatusUnauthorized)
			return
		}
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&s.conns, 1)
		s.mu.Lock()
		s.last = conn
		s.mu.Unlock()
		go func() {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if f, err := wire.Decode(msg); err == nil {
					s.frames <- f
				}
			}
		}()
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *testServer) push(t *testing.T, event string, v interface{}) {
	b, err := wire.Encode(event, v)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotNil(t, s.last)
	require.NoError(t, s.last.WriteMessage(websocket.TextMessage, b))
}

func (s *testServer) next(t *testing.T) *wire.Frame {
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func TestAcquireSharesConnection(t *testing.T) {
	srv := newTestServer(t)
	m := NewManager(&Config{URL: srv.wsURL(), Token: "good"})
	defer m.Close()

	l1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	l2, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.conns))
	assert.Equal(t, 2, m.Refs())

	l1.Release()
	l1.Release()
	assert.True(t, m.Connected())
	assert.Equal(t, 1, m.Refs())

	l2.Release()
	assert.False(t, m.Connected())

	l3, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer l3.Release()
	assert.Equal(t, int32(2), atomic.LoadInt32(&srv.conns))
}

func TestReleaseDetachesListeners(t *testing.T) {
	srv := newTestServer(t)
	m := NewManager(&Config{URL: srv.wsURL(), Token: "good"})
	defer m.Close()

	got := make(chan string, 8)
	mount := func() *Lease {
		l, err := m.Acquire(context.Background())
		require.NoError(t, err)
		l.On(wire.EventNewMessage, func(f *wire.Frame) {
			var msg wire.Message
			assert.NoError(t, f.Bind(&msg))
			got <- msg.ID
		})
		l.On(wire.EventTyping, func(*wire.Frame) {})
		return l
	}

	l := mount()
	assert.Equal(t, 2, m.ListenerCount())
	l.Release()
	assert.Equal(t, 0, m.ListenerCount())

	// Re-mount: exactly one delivery per event.
	l = mount()
	defer l.Release()
	assert.Equal(t, 2, m.ListenerCount())

	srv.push(t, wire.EventNewMessage, &wire.Message{ID: "m1"})
	select {
	case id := <-got:
		assert.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case id := <-got:
		t.Fatalf("duplicate delivery: %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEmits(t *testing.T) {
	srv := newTestServer(t)
	m := NewManager(&Config{URL: srv.wsURL(), Token: "good"})
	defer m.Close()

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)

	l.SendMessage("u2", "hi", WithClientID("c1"))
	f := srv.next(t)
	assert.Equal(t, wire.EventSendMessage, f.Event)
	var req wire.SendMessageReq
	require.NoError(t, f.Bind(&req))
	assert.Equal(t, wire.SendMessageReq{To: "u2", Text: "hi", ClientID: "c1"}, req)

	l.Typing("u2")
	assert.Equal(t, wire.EventTyping, srv.next(t).Event)
	l.StopTyping("u2")
	assert.Equal(t, wire.EventStopTyping, srv.next(t).Event)

	l.MarkSeen("u2")
	f = srv.next(t)
	assert.Equal(t, wire.EventSeenChat, f.Event)
	var seen wire.SeenChatReq
	require.NoError(t, f.Bind(&seen))
	assert.Equal(t, "u2", seen.From)

	l.Release()
	// Emits after release are dropped silently.
	l.Typing("u2")
	select {
	case f := <-srv.frames:
		t.Fatalf("unexpected frame after release: %s", f.Event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeleteAndClearAreOptimistic(t *testing.T) {
	srv := newTestServer(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := socket_mock.NewMockIRemote(ctrl)

	m := NewManager(&Config{URL: srv.wsURL(), Token: "good", Remote: remote})
	defer m.Close()

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer l.Release()

	var deleted []string
	var cleared int
	l.On(wire.EventMessageDeleted, func(f *wire.Frame) {
		var ref wire.MessageRef
		require.NoError(t, f.Bind(&ref))
		deleted = append(deleted, ref.MessageID)
	})
	l.On(wire.EventChatCleared, func(*wire.Frame) { cleared++ })

	remote.EXPECT().DeleteMessage(gomock.Any(), "m1", wire.ModeEveryone).
		DoAndReturn(func(context.Context, string, string) error {
			// the local removal already happened.
			assert.Equal(t, []string{"m1"}, deleted)
			return errors.New("boom")
		})
	remote.EXPECT().ClearChat(gomock.Any(), "u2", wire.ModeMe).Return(nil)

	l.DeleteMessage("m1", wire.ModeEveryone)
	l.ClearChat("u2", wire.ModeMe)
	assert.Equal(t, []string{"m1"}, deleted)
	assert.Equal(t, 1, cleared)
}

func TestDialErrors(t *testing.T) {
	srv := newTestServer(t)

	m := NewManager(&Config{URL: srv.wsURL()})
	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrMissingToken)

	m = NewManager(&Config{URL: srv.wsURL(), Token: "bad"})
	_, err = m.Acquire(context.Background(), Listen(wire.EventNewMessage, func(*wire.Frame) {}))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, m.Refs())
	assert.Equal(t, 0, m.ListenerCount())

	m.Close()
	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDeadConnectionIsRedialed(t *testing.T) {
	srv := newTestServer(t)
	m := NewManager(&Config{URL: srv.wsURL(), Token: "good"})
	defer m.Close()

	l1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer l1.Release()

	srv.mu.Lock()
	srv.last.Close()
	srv.mu.Unlock()

	assert.Eventually(t, func() bool { return !m.Connected() }, 2*time.Second, 10*time.Millisecond)

	l2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer l2.Release()
	assert.True(t, m.Connected())
	assert.Equal(t, int32(2), atomic.LoadInt32(&srv.conns))
}

func TestListenBeforeDial(t *testing.T) {
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b, _ := wire.Encode(wire.EventUserOnline, &wire.PresenceEvent{UserID: "u1"})
		_ = conn.WriteMessage(websocket.TextMessage, b)
		go func() {
			defer conn.Close()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	defer srv.Close()

	m := NewManager(&Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "any"})
	defer m.Close()

	got := make(chan string, 1)
	l, err := m.Acquire(context.Background(), Listen(wire.EventUserOnline, func(f *wire.Frame) {
		var p wire.PresenceEvent
		if assert.NoError(t, f.Bind(&p)) {
			got <- p.UserID
		}
	}))
	require.NoError(t, err)
	defer l.Release()

	select {
	case uid := <-got:
		assert.Equal(t, "u1", uid)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake push missed")
	}
}
