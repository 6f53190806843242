package chat

import (
	"strings"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/mqy/minichat/wire"
)

// Conversation is the message list of a one-to-one chat with Peer, as seen by Me.
// It is not safe for concurrent use; the owning view serializes access.
type Conversation struct {
	Me   string
	Peer string

	messages []wire.Message
	seen     *SeenTracker
}

func NewConversation(me, peer string) *Conversation {
	return &Conversation{
		Me:       me,
		Peer:     peer,
		messages: []wire.Message{},
		seen:     NewSeenTracker(peer),
	}
}

// Messages returns the current list. The returned slice must not be modified.
func (c *Conversation) Messages() []wire.Message {
	return c.messages
}

// Load merges fetched history into the list. History order wins; messages
// received live before the response are kept after it, and pending sends stay
// pending unless the history already holds their echo. This is the only
// resync path.
func (c *Conversation) Load(history []wire.Message) Result {
	before := len(c.messages)
	list := make([]wire.Message, 0, len(history)+before)
	known := make(map[string]int, len(history))
	for _, m := range history {
		if _, ok := known[m.ID]; ok {
			continue
		}
		if m.Status == "" {
			m.Status = wire.StatusSent
		}
		m.Pending = false
		known[m.ID] = len(list)
		list = append(list, m)
	}
	fetched := len(list)

	var live []wire.Message
	for _, m := range c.messages {
		if i, ok := known[m.ID]; ok {
			list[i].Status = list[i].Status.Upgrade(m.Status)
			continue
		}
		live = append(live, m)
	}
	for i := 0; i < fetched && len(live) > 0; i++ {
		if j := findEchoed(live, &list[i]); j >= 0 {
			list[i].Status = list[i].Status.Upgrade(live[j].Status)
			live = append(live[:j:j], live[j+1:]...)
		}
	}
	if len(live) > 0 {
		glog.V(5).Infof("conversation %s: keep %d live messages after history", c.Peer, len(live))
	}

	c.messages = append(list, live...)
	res := Result{Messages: c.messages, Changed: true}
	if n := len(c.messages) - before; n > 0 {
		res.Appended = n
	}
	return res
}

// Apply reconciles e into the list. `new_message` events of other conversations
// are ignored.
func (c *Conversation) Apply(e Event) Result {
	if add, ok := e.(MessageAdded); ok && !add.Message.Involves(c.Peer) {
		glog.V(5).Infof("conversation %s: skip message %s of other chat", c.Peer, add.Message.ID)
		return Result{Messages: c.messages}
	}
	res := Reconcile(c.messages, e)
	c.messages = res.Messages
	return res
}

const localPrefix = "local-"

// IsLocalID reports whether id belongs to an optimistic message the server has
// not confirmed yet.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localPrefix)
}

// NewOutgoing builds the optimistic message for a local send.
func (c *Conversation) NewOutgoing(text string) wire.Message {
	clientID := uuid.New()
	return wire.Message{
		ID:        localPrefix + clientID,
		ClientID:  clientID,
		Sender:    wire.UserRef(c.Me),
		Receiver:  wire.UserRef(c.Peer),
		Text:      text,
		CreatedAt: now(),
		Status:    wire.StatusSent,
		Pending:   true,
	}
}

// PendingSeen returns peer-authored ids that should be acknowledged now.
func (c *Conversation) PendingSeen() []string {
	return c.seen.Pending(c.messages)
}

// LastSeen returns the id of the newest message with status seen, or "".
func (c *Conversation) LastSeen() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Status == wire.StatusSeen {
			return c.messages[i].ID
		}
	}
	return ""
}
