package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"

	"github.com/mqy/minichat/wire"
)

var (
	ErrMissingToken = errors.New("socket: missing auth token")
	ErrUnauthorized = errors.New("socket: unauthorized")
	ErrClosed       = errors.New("socket: manager closed")
)

const handshakeTimeout = 10 * time.Second

// IRemote is the REST fallback of delete and clear, which have no socket event.
type IRemote interface {
	// DeleteMessage deletes a message, for the caller only (mode `me`) or for both
	// parties (mode `everyone`).
	DeleteMessage(ctx context.Context, messageID, mode string) error

	// ClearChat clears the conversation with peer.
	ClearChat(ctx context.Context, peer, mode string) error
}

// Handler receives inbound frames of one event.
type Handler func(f *wire.Frame)

type Config struct {
	// URL of the websocket endpoint, e.g. ws://127.0.0.1:8000/ws.
	URL   string
	Token string

	Remote IRemote
	// Timeout of a REST fallback call.
	RemoteTimeout time.Duration

	Dialer *websocket.Dialer
}

// Manager owns the single connection of an authenticated session. Connections
// are acquired through reference counted leases: the first lease dials, later
// leases reuse the open connection, and releasing the last lease closes it. A
// connection found dead on Acquire is discarded and redialed; nothing redials
// on its own.
type Manager struct {
	sync.Mutex

	conf   *Config
	conn   *Conn
	refs   int
	closed bool

	lmu       sync.RWMutex
	listeners map[string]map[int]Handler
	nextID    int
}

func NewManager(conf *Config) *Manager {
	if conf.Dialer == nil {
		conf.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	if conf.RemoteTimeout <= 0 {
		conf.RemoteTimeout = 10 * time.Second
	}
	return &Manager{
		conf:      conf,
		listeners: make(map[string]map[int]Handler),
	}
}

// AcquireOption configures a lease before the connection is dialed.
type AcquireOption func(*Lease)

// Listen attaches h before dialing, so frames the server pushes right after
// the handshake are not missed.
func Listen(event string, h Handler) AcquireOption {
	return func(l *Lease) { l.On(event, h) }
}

// Acquire returns a lease on the session connection, dialing if needed.
func (m *Manager) Acquire(ctx context.Context, opts ...AcquireOption) (*Lease, error) {
	m.Lock()
	defer m.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	l := &Lease{m: m}
	for _, opt := range opts {
		opt(l)
	}

	if m.conn != nil && m.conn.Closed() {
		glog.Infof("socket: discard dead connection %s", m.conn)
		m.conn = nil
	}

	if m.conn == nil {
		conn, err := m.dial(ctx)
		if err != nil {
			l.detach()
			return nil, err
		}
		m.conn = conn
	}

	m.refs++
	glog.V(5).Infof("socket: acquired %s, refs: %d", m.conn, m.refs)
	return l, nil
}

func (m *Manager) dial(ctx context.Context) (*Conn, error) {
	if m.conf.Token == "" {
		return nil, ErrMissingToken
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.conf.Token)

	ws, resp, err := m.conf.Dialer.DialContext(ctx, m.conf.URL, header)
	if err != nil {
		dialFailures.Inc()
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("socket: dial %s: %w", m.conf.URL, err)
	}

	id := uuid.New()
	glog.Infof("socket: connected %s, conn: %s", m.conf.URL, id)
	return newConn(id, ws, m.dispatch), nil
}

func (m *Manager) release() {
	m.Lock()
	defer m.Unlock()

	if m.refs == 0 {
		return
	}
	m.refs--
	glog.V(5).Infof("socket: released, refs: %d", m.refs)
	if m.refs == 0 && m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// Close closes the connection and drops every listener. Later Acquire calls fail.
func (m *Manager) Close() {
	m.Lock()
	m.closed = true
	m.refs = 0
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.Unlock()

	m.lmu.Lock()
	m.listeners = make(map[string]map[int]Handler)
	m.lmu.Unlock()
	glog.Info("socket: manager closed")
}

// Connected reports whether a live connection exists.
func (m *Manager) Connected() bool {
	m.Lock()
	defer m.Unlock()
	return m.conn != nil && !m.conn.Closed()
}

// Refs is the number of outstanding leases.
func (m *Manager) Refs() int {
	m.Lock()
	defer m.Unlock()
	return m.refs
}

// ListenerCount is the number of attached listeners across all events.
func (m *Manager) ListenerCount() int {
	m.lmu.RLock()
	defer m.lmu.RUnlock()
	n := 0
	for _, hs := range m.listeners {
		n += len(hs)
	}
	return n
}

func (m *Manager) on(event string, h Handler) int {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	id := m.nextID
	m.nextID++
	hs, ok := m.listeners[event]
	if !ok {
		hs = make(map[int]Handler)
		m.listeners[event] = hs
	}
	hs[id] = h
	return id
}

func (m *Manager) off(event string, id int) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	if hs, ok := m.listeners[event]; ok {
		delete(hs, id)
		if len(hs) == 0 {
			delete(m.listeners, event)
		}
	}
}

func (m *Manager) dispatch(f *wire.Frame) {
	m.lmu.RLock()
	hs := make([]Handler, 0, len(m.listeners[f.Event]))
	for _, h := range m.listeners[f.Event] {
		hs = append(hs, h)
	}
	m.lmu.RUnlock()

	if len(hs) == 0 {
		glog.V(5).Infof("socket: no listener for `%s`", f.Event)
		return
	}
	for _, h := range hs {
		h(f)
	}
}

// dispatchLocal delivers a locally produced event to listeners, as if pushed.
func (m *Manager) dispatchLocal(event string, v interface{}) {
	data, err := wire.Encode(event, v)
	if err != nil {
		glog.Errorf("socket: encode local `%s`: %v", event, err)
		return
	}
	f, err := wire.Decode(data)
	if err != nil {
		glog.Errorf("socket: decode local `%s`: %v", event, err)
		return
	}
	m.dispatch(f)
}

func (m *Manager) emit(event string, v interface{}) {
	m.Lock()
	conn := m.conn
	m.Unlock()

	if conn == nil {
		emitsDropped.WithLabelValues(event).Inc()
		glog.Errorf("socket: drop `%s`: not connected", event)
		return
	}
	if err := conn.emit(event, v); err != nil {
		emitsDropped.WithLabelValues(event).Inc()
		glog.Errorf("socket: drop `%s`: %v", event, err)
	}
}
