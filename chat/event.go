package chat

import "github.com/mqy/minichat/wire"

// Origin tells whether an event is a local prediction or came from the server.
type Origin int

const (
	Confirmed Origin = iota
	Optimistic
)

func (o Origin) String() string {
	if o == Optimistic {
		return "optimistic"
	}
	return "confirmed"
}

// Event is a mutation of a conversation's message list. The concrete types are
// MessageAdded, StatusChanged, MessageRemoved and Cleared.
type Event interface {
	Origin() Origin
}

// MessageAdded appends a message, either a local optimistic send or a server
// `new_message`.
type MessageAdded struct {
	From    Origin
	Message wire.Message
}

// StatusChanged upgrades the status of the given ids. `message_delivered` carries
// one id, `messages_seen` a batch.
type StatusChanged struct {
	From   Origin
	IDs    []string
	Status wire.Status
}

// MessageRemoved removes one message.
type MessageRemoved struct {
	From Origin
	ID   string
}

// Cleared empties the conversation.
type Cleared struct {
	From Origin
}

func (e MessageAdded) Origin() Origin   { return e.From }
func (e StatusChanged) Origin() Origin  { return e.From }
func (e MessageRemoved) Origin() Origin { return e.From }
func (e Cleared) Origin() Origin        { return e.From }
