package socket

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/mqy/minichat/wire"
)

type listenerKey struct {
	event string
	id    int
}

// Lease is a hold on the session connection, typically one per mounted view.
// Listeners attached through a lease are detached by Release.
type Lease struct {
	m *Manager

	mu        sync.Mutex
	listeners []listenerKey
	released  bool
}

// On attaches h to event and returns a func that detaches it.
func (l *Lease) On(event string, h Handler) (off func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		glog.Errorf("socket: On(%s) on released lease", event)
		return func() {}
	}

	key := listenerKey{event: event, id: l.m.on(event, h)}
	l.listeners = append(l.listeners, key)

	var once sync.Once
	return func() {
		once.Do(func() { l.m.off(key.event, key.id) })
	}
}

// Release detaches the lease's listeners and gives up its hold on the connection.
// It is safe to call more than once.
func (l *Lease) Release() {
	if l.detach() {
		l.m.release()
	}
}

// detach marks the lease released and detaches its listeners. It reports
// whether the lease was live.
func (l *Lease) detach() bool {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return false
	}
	l.released = true
	keys := l.listeners
	l.listeners = nil
	l.mu.Unlock()

	for _, k := range keys {
		l.m.off(k.event, k.id)
	}
	return true
}

func (l *Lease) isReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

func (l *Lease) emit(event string, v interface{}) {
	if l.isReleased() {
		emitsDropped.WithLabelValues(event).Inc()
		glog.Errorf("socket: drop `%s`: lease released", event)
		return
	}
	l.m.emit(event, v)
}

type SendOption func(*wire.SendMessageReq)

// WithClientID tags the message so the server echo can be matched with the
// local optimistic copy.
func WithClientID(id string) SendOption {
	return func(r *wire.SendMessageReq) { r.ClientID = id }
}

// SendMessage emits `send_message`. Like every emit it is fire-and-forget.
func (l *Lease) SendMessage(to, text string, opts ...SendOption) {
	req := &wire.SendMessageReq{To: to, Text: text}
	for _, opt := range opts {
		opt(req)
	}
	l.emit(wire.EventSendMessage, req)
}

func (l *Lease) Typing(to string) {
	l.emit(wire.EventTyping, &wire.TypingReq{To: to})
}

func (l *Lease) StopTyping(to string) {
	l.emit(wire.EventStopTyping, &wire.TypingReq{To: to})
}

// MarkSeen asks the server to mark every message from `from` as seen.
func (l *Lease) MarkSeen(from string) {
	l.emit(wire.EventSeenChat, &wire.SeenChatReq{From: from})
}

// DeleteMessage removes the message locally right away, by dispatching
// `message_deleted` to the listeners, then deletes it on the server. A server
// failure is logged only.
func (l *Lease) DeleteMessage(messageID, mode string) {
	l.m.dispatchLocal(wire.EventMessageDeleted, &wire.MessageRef{MessageID: messageID})
	l.remote("delete message "+messageID, func(ctx context.Context, r IRemote) error {
		return r.DeleteMessage(ctx, messageID, mode)
	})
}

// ClearChat empties the conversation locally right away, by dispatching
// `chat_cleared`, then clears it on the server. A server failure is logged only.
func (l *Lease) ClearChat(peer, mode string) {
	l.m.dispatchLocal(wire.EventChatCleared, &wire.ChatClearedEvent{With: peer})
	l.remote("clear chat "+peer, func(ctx context.Context, r IRemote) error {
		return r.ClearChat(ctx, peer, mode)
	})
}

func (l *Lease) remote(what string, call func(context.Context, IRemote) error) {
	r := l.m.conf.Remote
	if r == nil {
		glog.Errorf("socket: %s: no remote configured", what)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.m.conf.RemoteTimeout)
	defer cancel()
	if err := call(ctx, r); err != nil {
		glog.Errorf("socket: %s failed: %v", what, err)
	}
}
