package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mqy/minichat/chat"
	"github.com/mqy/minichat/socket"
	"github.com/mqy/minichat/viewport"
	"github.com/mqy/minichat/wire"
)

const (
	actionBufSize = 128
	updateBufSize = 64
)

// IHistory fetches the stored conversation with a peer.
type IHistory interface {
	History(ctx context.Context, peer string) ([]wire.Message, error)
}

// Update is the view state after a change, with the scroll the view should do.
type Update struct {
	Messages   []wire.Message
	PeerTyping bool
	Scroll     viewport.Action
}

type viewOptions struct {
	threshold      float64
	anchorLastSeen bool
	typingDelay    time.Duration
}

// ChatView is a mounted conversation. Socket events, the history response and
// local actions all run on one goroutine, in arrival order.
type ChatView struct {
	Me   string
	Peer string

	lease    *socket.Lease
	history  IHistory
	conv     *chat.Conversation
	typing   *chat.TypingIndicator
	signaler *chat.TypingSignaler
	vp       *viewport.Controller

	actions chan func()
	updates chan Update
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	onClose func(*ChatView)

	mu         sync.RWMutex
	messages   []wire.Message
	peerTyping bool
}

func newChatView(me, peer string, history IHistory, opts *viewOptions) *ChatView {
	ctx, cancel := context.WithCancel(context.Background())
	vp := viewport.New(opts.threshold)
	vp.AnchorLastSeen = opts.anchorLastSeen
	v := &ChatView{
		Me:       me,
		Peer:     peer,
		history:  history,
		conv:     chat.NewConversation(me, peer),
		typing:   chat.NewTypingIndicator(peer),
		vp:       vp,
		actions:  make(chan func(), actionBufSize),
		updates:  make(chan Update, updateBufSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		messages: []wire.Message{},
	}
	// Emits are safe from any goroutine, including the timer's.
	v.signaler = chat.NewTypingSignaler(opts.typingDelay,
		func() { v.lease.Typing(peer) },
		func() { v.lease.StopTyping(peer) },
	)
	return v
}

// listeners forwards every conversation event to the loop.
func (v *ChatView) listeners() []socket.AcquireOption {
	events := []string{
		wire.EventNewMessage,
		wire.EventTyping,
		wire.EventStopTyping,
		wire.EventMessageDeleted,
		wire.EventChatCleared,
		wire.EventMessageDelivered,
		wire.EventMessagesSeen,
	}
	opts := make([]socket.AcquireOption, 0, len(events))
	for _, event := range events {
		opts = append(opts, socket.Listen(event, func(f *wire.Frame) {
			v.post(func() { v.handle(f) })
		}))
	}
	return opts
}

func (v *ChatView) start(lease *socket.Lease) {
	v.lease = lease
	v.wg.Add(2)
	go v.loop()
	go v.load()
}

func (v *ChatView) loop() {
	defer v.wg.Done()
	for {
		select {
		case fn := <-v.actions:
			if v.ctx.Err() == nil {
				fn()
			}
		case <-v.done:
			return
		}
	}
}

// post queues fn on the loop. It reports false once the view is closed.
func (v *ChatView) post(fn func()) bool {
	select {
	case <-v.done:
		return false
	default:
	}
	select {
	case v.actions <- fn:
		return true
	case <-v.done:
		return false
	}
}

func (v *ChatView) load() {
	defer v.wg.Done()
	list, err := v.history.History(v.ctx, v.Peer)
	v.post(func() {
		if err != nil {
			glog.Errorf("chat %s: load history: %v", v.Peer, err)
			return
		}
		res := v.conv.Load(list)
		v.changed(res.Appended)
	})
}

func (v *ChatView) handle(f *wire.Frame) {
	var e chat.Event
	switch f.Event {
	case wire.EventNewMessage:
		var m wire.Message
		if v.bind(f, &m) {
			e = chat.MessageAdded{From: chat.Confirmed, Message: m}
		}
	case wire.EventTyping, wire.EventStopTyping:
		var t wire.TypingEvent
		if v.bind(f, &t) && v.typing.Set(t.From, f.Event == wire.EventTyping) {
			v.publish(viewport.Action{Kind: viewport.None})
		}
	case wire.EventMessageDeleted:
		var ref wire.MessageRef
		if v.bind(f, &ref) {
			e = chat.MessageRemoved{From: chat.Confirmed, ID: ref.MessageID}
		}
	case wire.EventChatCleared:
		var c wire.ChatClearedEvent
		if v.bind(f, &c) && c.Clears(v.Me, v.Peer) {
			e = chat.Cleared{From: chat.Confirmed}
		}
	case wire.EventMessageDelivered:
		var ref wire.MessageRef
		if v.bind(f, &ref) {
			e = chat.StatusChanged{From: chat.Confirmed, IDs: []string{ref.MessageID}, Status: wire.StatusDelivered}
		}
	case wire.EventMessagesSeen:
		var ids wire.SeenEvent
		if v.bind(f, &ids) {
			e = chat.StatusChanged{From: chat.Confirmed, IDs: ids, Status: wire.StatusSeen}
		}
	}
	if e != nil {
		v.apply(e)
	}
}

func (v *ChatView) bind(f *wire.Frame, out interface{}) bool {
	if err := f.Bind(out); err != nil {
		glog.Errorf("chat %s: bad `%s` payload: %v", v.Peer, f.Event, err)
		return false
	}
	return true
}

func (v *ChatView) apply(e chat.Event) {
	res := v.conv.Apply(e)
	if res.Changed {
		v.changed(res.Appended)
	}
}

// changed runs after each list mutation: scroll policy, then seen policy.
func (v *ChatView) changed(appended int) {
	msgs := v.conv.Messages()
	action := v.vp.OnMessages(len(msgs), appended, v.conv.LastSeen())
	if ids := v.conv.PendingSeen(); len(ids) > 0 {
		glog.V(5).Infof("chat %s: mark %d messages seen", v.Peer, len(ids))
		v.lease.MarkSeen(v.Peer)
	}
	v.publish(action)
}

func (v *ChatView) publish(action viewport.Action) {
	u := Update{
		Messages:   v.conv.Messages(),
		PeerTyping: v.typing.Typing(),
		Scroll:     action,
	}
	v.mu.Lock()
	v.messages = u.Messages
	v.peerTyping = u.PeerTyping
	v.mu.Unlock()

	select {
	case v.updates <- u:
	default:
		glog.V(5).Infof("chat %s: updates full, drop update", v.Peer)
	}
}

// Send appends the message optimistically and emits it. Blank text is ignored.
func (v *ChatView) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ok := v.post(func() {
		out := v.conv.NewOutgoing(text)
		v.lease.SendMessage(v.Peer, text, socket.WithClientID(out.ClientID))
		v.signaler.Sent()
		v.apply(chat.MessageAdded{From: chat.Optimistic, Message: out})
	})
	if !ok {
		return ErrClosed
	}
	return nil
}

// Input reports the current text of the input box.
func (v *ChatView) Input(text string) error {
	if v.closed() {
		return ErrClosed
	}
	v.signaler.Keystroke(text)
	return nil
}

// Delete removes a message now and deletes it on the server in the background.
// A message still waiting for its server echo cannot be deleted.
func (v *ChatView) Delete(messageID, mode string) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	if chat.IsLocalID(messageID) {
		return ErrPending
	}
	if v.closed() {
		return ErrClosed
	}
	// The local removal is dispatched through the loop's own listeners.
	go v.lease.DeleteMessage(messageID, mode)
	return nil
}

// Clear empties the conversation now and clears it on the server in the background.
func (v *ChatView) Clear(mode string) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	if v.closed() {
		return ErrClosed
	}
	go v.lease.ClearChat(v.Peer, mode)
	return nil
}

func checkMode(mode string) error {
	if mode != wire.ModeMe && mode != wire.ModeEveryone {
		return fmt.Errorf("session: unknown mode `%s`", mode)
	}
	return nil
}

// Scroll reports the reader's scroll position.
func (v *ChatView) Scroll(m viewport.Metrics) error {
	if !v.post(func() { v.vp.OnScroll(m) }) {
		return ErrClosed
	}
	return nil
}

// Messages is the latest list. It must not be modified.
func (v *ChatView) Messages() []wire.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.messages
}

func (v *ChatView) PeerTyping() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.peerTyping
}

// Updates delivers view changes. Updates are dropped while the channel is full;
// Messages always has the latest list. The channel is closed by Close.
func (v *ChatView) Updates() <-chan Update {
	return v.updates
}

func (v *ChatView) closed() bool {
	select {
	case <-v.done:
		return true
	default:
		return false
	}
}

// Close unmounts the view: its listeners are detached, the pending history
// fetch is abandoned and later responses are dropped.
func (v *ChatView) Close() {
	v.once.Do(func() {
		v.signaler.Stop()
		v.lease.Release()
		v.cancel()
		close(v.done)
		v.wg.Wait()
		close(v.updates)
		if v.onClose != nil {
			v.onClose(v)
		}
	})
}
