package relay

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/mqy/minichat/wire"
)

type SessionError int

const (
	ReadError  SessionError = 1
	WriteError SessionError = 2
	PingError  SessionError = 3
	BadRequest SessionError = 4
	ServerStop SessionError = 5
	SlowClient SessionError = 6
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 16 * 1024

	dataChanSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Development relay: browsers and terminal clients of any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session describes one websocket connection of a user.
type Session struct {
	Sid        string `json:"sid"`
	Uid        string `json:"uid"`
	CreateTime int64  `json:"create_time"`
	Ip         string `json:"ip"`
}

// Handler manages an active connection to end user.
// Every new websocket connection creates a new session.
type Handler struct {
	sync.Mutex

	hub *Hub

	session *Session
	conn    *websocket.Conn

	dataChan chan *SessionData

	closing bool
}

// SessionData is the data structure for `dataChan`.
type SessionData struct {
	Error SessionError
	// Frame is an encoded `wire.Frame`.
	Frame []byte
}

func (h *Handler) String() string {
	return fmt.Sprintf("{sid: %s, uid: %s, ip: %s}", h.session.Sid, h.session.Uid, h.session.Ip)
}

func (h *Handler) close(cause SessionError) {
	h.Lock()
	if h.closing {
		h.Unlock()
		return
	}

	h.closing = true

	// WriteControl may run concurrently with sendLoop writes.
	_ = h.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	h.conn.Close()

	close(h.dataChan)
	h.Unlock()

	if cause != ServerStop {
		glog.V(5).Infof("session closed, cause: %d, %s", cause, h)
		// Ask for hub to remove this handler. Outside the lock: removal
		// broadcasts presence to other handlers.
		h.hub.delHandler(h.session.Sid)
	}
}

func (h *Handler) isClosing() bool {
	h.Lock()
	defer h.Unlock()
	return h.closing
}

// appendDataChan never blocks; a client that can't keep up is disconnected.
func (h *Handler) appendDataChan(v *SessionData) {
	h.Lock()
	defer h.Unlock()
	if h.closing {
		return
	}
	select {
	case h.dataChan <- v:
	default:
		glog.Errorf("session data chan full, drop frame, session: %s", h)
		if v.Error == 0 {
			go h.close(SlowClient)
		}
	}
}

// push encodes and queues a frame.
func (h *Handler) push(event string, v interface{}) {
	data, err := wire.Encode(event, v)
	if err != nil {
		glog.Errorf("push(): encode `%s` error: %v", event, err)
		return
	}
	h.appendDataChan(&SessionData{Frame: data})
}

func sendFrame(conn *websocket.Conn, frame []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (h *Handler) recvLoop() {
	defer func() { glog.V(5).Infof("recvLoop(): exited, session: %s", h) }()

	h.conn.SetReadLimit(readLimit)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(s string) error {
		h.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for !h.isClosing() {
		msgType, msg, err := h.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Errorf("recvLoop(): read error: %v", err)
			}
			h.appendDataChan(&SessionData{Error: ReadError})
			return
		}

		glog.V(5).Infof("recvLoop(): incoming client message: %v", string(msg))

		if msgType != websocket.TextMessage {
			glog.Errorf("recvLoop(): unexpected message type: %d", msgType)
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		f, err := wire.Decode(msg)
		if err != nil {
			glog.Errorf("recvLoop(): message error: msg: %s, err: %v", string(msg), err)
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		framesReceived.WithLabelValues(f.Event).Inc()

		// Invalid payloads are dropped; the protocol has no error frame.
		if err := h.hub.route(h.session.Uid, f); err != nil {
			glog.Errorf("recvLoop(): route `%s` error: %v, session: %s", f.Event, err, h)
		}
	}
}

func (h *Handler) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("sendLoop(): exited, session: %s", h)
	}()

	for {
		select {
		case v, ok := <-h.dataChan:
			if !ok { // chan was closed
				h.conn.Close()
				glog.V(5).Infof("sendLoop(): data chan closed, session: %s", h)
				return
			}

			if v.Error > 0 {
				h.close(v.Error)
				return
			}

			if glog.V(5) {
				logValue := string(v.Frame)
				if len(logValue) > 100 {
					logValue = logValue[:100] + " ..."
				}
				glog.Infof("sendLoop(), get from data chan, value: %s, session: %s", logValue, h)
			}

			if err := sendFrame(h.conn, v.Frame); err != nil {
				glog.Errorf("sendLoop(), error write message. session: %s, err: %v", h, err)
				h.close(WriteError)
				return
			}
		case <-pingTicker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.Errorf("sendLoop(), error write ping message. session: %s, err: %v", h, err)
				h.close(PingError)
				return
			}
		}
	}
}
