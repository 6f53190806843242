package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/mqy/minichat/auth"
	"github.com/mqy/minichat/store"
	"github.com/mqy/minichat/wire"
)

const storeTimeout = 5 * time.Second

// Hub works as a hub that manages and serves sessions.
type Hub struct {
	authClient auth.Client
	store      store.IMessageStore
	hstore     *HandlerStore
	validate   *validator.Validate
	now        func() time.Time
}

// NewHub creates a `Hub`.
func NewHub(authClient auth.Client, msgStore store.IMessageStore) *Hub {
	return &Hub{
		authClient: authClient,
		store:      msgStore,
		hstore:     newHandlerStore(),
		validate:   validator.New(),
		now:        time.Now,
	}
}

// ServeHTTP handles websocket requests from the peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uid, err := h.authClient.Auth(r)
	if err != nil {
		glog.Errorf("ServeHTTP(): authenticate error: %v", err)
		http.Error(w, "Authenticate error", http.StatusUnauthorized)
		return
	}

	sess := &Session{
		Uid:        uid,
		Sid:        newID(),
		CreateTime: h.now().Unix(),
		Ip:         getRemoteIP(r),
	}

	// If the upgrade fails, then Upgrade replies to the client with an HTTP error response.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("ServeHTTP(): upgrader.Upgrade error, uid: %s, err: %s", uid, err)
		return
	}

	// NOTE:  after upgrade, `w.WriteHeader(...)`` causes error `response.Write on hijacked connection`.

	// Room for the presence snapshot, which is queued before sendLoop runs.
	online := h.hstore.uids()
	handler := &Handler{
		dataChan: make(chan *SessionData, dataChanSize+len(online)),
		session:  sess,
		conn:     conn,
		hub:      h,
	}

	h.addHandler(handler, online)

	go handler.recvLoop()
	go handler.sendLoop()
}

// addHandler registers handler and tells it who of online is connected.
func (h *Hub) addHandler(handler *Handler, online []string) {
	uid := handler.session.Uid

	for _, other := range online {
		if other != uid {
			handler.push(wire.EventUserOnline, &wire.PresenceEvent{UserID: other})
		}
	}

	first := h.hstore.add(handler)
	sessionsGauge.Inc()
	glog.Infof("session online: %s, first: %v", handler, first)
	if !first {
		return
	}

	usersGauge.Inc()
	h.broadcast(uid, wire.EventUserOnline, &wire.PresenceEvent{UserID: uid})

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	pending, err := h.store.DeliverPending(ctx, uid)
	if err != nil {
		glog.Errorf("addHandler(): deliver pending messages of %s error: %v", uid, err)
		return
	}
	for sender, ids := range pending {
		for _, id := range ids {
			h.push(sender, wire.EventMessageDelivered, &wire.MessageRef{MessageID: id})
		}
	}
}

func (h *Hub) delHandler(sid string) {
	uid, last := h.hstore.del(sid)
	if uid == "" {
		return
	}
	sessionsGauge.Dec()
	glog.Infof("session offline: %s, uid: %s, last: %v", sid, uid, last)
	if last {
		usersGauge.Dec()
		h.broadcast(uid, wire.EventUserOffline, &wire.PresenceEvent{UserID: uid})
	}
}

// Online reports whether uid has at least one session.
func (h *Hub) Online(uid string) bool {
	return h.hstore.online(uid)
}

// Sessions lists open sessions, oldest first.
func (h *Hub) Sessions() []*Session {
	return h.hstore.shallowCopySessions()
}

// Close closes every session.
func (h *Hub) Close() {
	glog.Infof("close connections ...")
	n := len(h.hstore.all())
	h.hstore.close()
	sessionsGauge.Sub(float64(n))
	usersGauge.Set(0)
	glog.Infof("close connections done")
}

// push sends a frame to every session of uid.
func (h *Hub) push(uid, event string, v interface{}) {
	for _, handler := range h.hstore.getByUid(uid) {
		handler.push(event, v)
	}
}

// broadcast sends a frame to every session not owned by except.
func (h *Hub) broadcast(except, event string, v interface{}) {
	for _, handler := range h.hstore.all() {
		if handler.session.Uid != except {
			handler.push(event, v)
		}
	}
}

// route serves a frame sent by uid.
func (h *Hub) route(uid string, f *wire.Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	switch f.Event {
	case wire.EventSendMessage:
		var req wire.SendMessageReq
		if err := h.bind(f, &req); err != nil {
			return err
		}
		return h.sendMessage(ctx, uid, &req)
	case wire.EventTyping, wire.EventStopTyping:
		var req wire.TypingReq
		if err := h.bind(f, &req); err != nil {
			return err
		}
		h.push(req.To, f.Event, &wire.TypingEvent{From: uid})
		return nil
	case wire.EventSeenChat:
		var req wire.SeenChatReq
		if err := h.bind(f, &req); err != nil {
			return err
		}
		return h.seenChat(ctx, uid, req.From)
	default:
		return fmt.Errorf("unsupported event `%s`", f.Event)
	}
}

func (h *Hub) bind(f *wire.Frame, v interface{}) error {
	if err := f.Bind(v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

func (h *Hub) sendMessage(ctx context.Context, uid string, req *wire.SendMessageReq) error {
	m := &wire.Message{
		ID:        newID(),
		Sender:    wire.UserRef(uid),
		Receiver:  wire.UserRef(req.To),
		Text:      req.Text,
		CreatedAt: h.now().UTC(),
		Status:    wire.StatusSent,
		ClientID:  req.ClientID,
	}
	if err := h.store.Save(ctx, m); err != nil {
		return err
	}
	messagesStored.Inc()

	h.push(uid, wire.EventNewMessage, m)
	if req.To == uid || !h.hstore.online(req.To) {
		return nil
	}

	if _, err := h.store.SetDelivered(ctx, m.ID); err != nil {
		return err
	}
	delivered := *m
	delivered.Status = wire.StatusDelivered
	h.push(req.To, wire.EventNewMessage, &delivered)
	h.push(uid, wire.EventMessageDelivered, &wire.MessageRef{MessageID: m.ID})
	return nil
}

func (h *Hub) seenChat(ctx context.Context, reader, from string) error {
	ids, err := h.store.MarkSeen(ctx, reader, from)
	if err != nil || len(ids) == 0 {
		return err
	}
	seen := wire.SeenEvent(ids)
	h.push(from, wire.EventMessagesSeen, seen)
	if from != reader {
		h.push(reader, wire.EventMessagesSeen, seen)
	}
	return nil
}

func newID() string {
	return strings.ReplaceAll(uuid.New(), "-", "")
}

func getRemoteIP(r *http.Request) string {
	ip := r.Header.Get("X-REAL-IP")
	if ip == "" {
		if ips := r.Header.Get("X-FORWARDED-FOR"); ips != "" {
			slice := strings.Split(ips, ",")
			for _, x := range slice {
				if x = strings.TrimSpace(x); x != "" {
					ip = x
				}
			}
		}
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}

	return ip
}
