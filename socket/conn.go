package socket

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/mqy/minichat/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 64 * 1024

	// outbound frames buffered per connection.
	sendBufSize = 64
)

type outFrame struct {
	event string
	data  []byte
}

// Conn is one live websocket connection. Inbound frames are handed to dispatch
// in transport order, from the recv goroutine.
type Conn struct {
	sync.Mutex

	id       string
	conn     *websocket.Conn
	dataChan chan outFrame
	dispatch func(*wire.Frame)
	done     chan struct{}
	closing  bool
}

func newConn(id string, ws *websocket.Conn, dispatch func(*wire.Frame)) *Conn {
	c := &Conn{
		id:       id,
		conn:     ws,
		dataChan: make(chan outFrame, sendBufSize),
		dispatch: dispatch,
		done:     make(chan struct{}),
	}
	liveConns.Inc()
	go c.recvLoop()
	go c.sendLoop()
	return c
}

func (c *Conn) String() string {
	return c.id
}

// Done is closed once the connection is closed, by either side.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether the connection is closed or closing.
func (c *Conn) Closed() bool {
	c.Lock()
	defer c.Unlock()
	return c.closing
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() {
	c.Lock()
	defer c.Unlock()
	if c.closing {
		return
	}
	c.closing = true

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = c.conn.Close()

	close(c.dataChan)
	close(c.done)
	liveConns.Dec()
	glog.V(5).Infof("conn %s: closed", c)
}

// emit queues a frame without blocking. A frame that cannot be queued is dropped.
func (c *Conn) emit(event string, v interface{}) error {
	data, err := wire.Encode(event, v)
	if err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()
	if c.closing {
		return fmt.Errorf("conn %s: closing", c)
	}
	select {
	case c.dataChan <- outFrame{event: event, data: data}:
		return nil
	default:
		return fmt.Errorf("conn %s: send buffer full", c)
	}
}

func (c *Conn) recvLoop() {
	defer func() {
		glog.V(5).Infof("conn %s: recvLoop(): exited", c)
		c.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !c.Closed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Errorf("conn %s: recvLoop(): read error: %v", c, err)
			}
			return
		}
		// Any traffic proves the peer alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			glog.Errorf("conn %s: recvLoop(): unexpected message type: %d", c, msgType)
			continue
		}

		f, err := wire.Decode(msg)
		if err != nil {
			glog.Errorf("conn %s: recvLoop(): bad frame: %s, err: %v", c, string(msg), err)
			continue
		}

		glog.V(5).Infof("conn %s: recvLoop(): incoming event: %s", c, f.Event)
		eventsReceived.WithLabelValues(f.Event).Inc()
		c.dispatch(f)
	}
}

func (c *Conn) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("conn %s: sendLoop(): exited", c)
	}()

	for {
		select {
		case v, ok := <-c.dataChan:
			if !ok { // chan was closed
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, v.data); err != nil {
				glog.Errorf("conn %s: sendLoop(): error write `%s`: %v", c, v.event, err)
				emitsDropped.WithLabelValues(v.event).Inc()
				go c.Close()
				return
			}
			emitsSent.WithLabelValues(v.event).Inc()
		case <-pingTicker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				glog.Errorf("conn %s: sendLoop(): error write ping: %v", c, err)
				go c.Close()
				return
			}
		}
	}
}
