package wire

// Inbound events pushed by the server.
const (
	EventNewMessage       = "new_message"
	EventTyping           = "typing"
	EventStopTyping       = "stop_typing"
	EventMessageDeleted   = "message_deleted"
	EventChatCleared      = "chat_cleared"
	EventMessageDelivered = "message_delivered"
	EventMessagesSeen     = "messages_seen"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
)

// Outbound events emitted by the client. `typing` and `stop_typing` share names
// with their inbound counterparts.
const (
	EventSendMessage = "send_message"
	EventSeenChat    = "seen_chat"
)

// Delete and clear scopes.
const (
	ModeMe       = "me"
	ModeEveryone = "everyone"
)

// SendMessageReq is the payload of `send_message`.
type SendMessageReq struct {
	To       string `json:"to" validate:"required"`
	Text     string `json:"text" validate:"required,max=4000"`
	ClientID string `json:"clientId,omitempty" validate:"omitempty,max=64"`
}

// TypingReq is the payload of outbound `typing` and `stop_typing`.
type TypingReq struct {
	To string `json:"to" validate:"required"`
}

// TypingEvent is the payload of inbound `typing` and `stop_typing`.
type TypingEvent struct {
	From string `json:"from"`
}

// SeenChatReq asks the server to mark every message from `From` as seen.
type SeenChatReq struct {
	From string `json:"from" validate:"required"`
}

// MessageRef is the payload of `message_deleted` and `message_delivered`.
type MessageRef struct {
	MessageID string `json:"messageId"`
}

// ChatClearedEvent is the payload of `chat_cleared`: the conversation between
// By and With was cleared. Both are optional; an empty event clears whatever
// conversation receives it.
type ChatClearedEvent struct {
	By   string `json:"by,omitempty"`
	With string `json:"with,omitempty"`
}

// Clears reports whether the event applies to the conversation of me and peer.
func (e *ChatClearedEvent) Clears(me, peer string) bool {
	switch {
	case e.By == "" && e.With == "":
		return true
	case e.By == "":
		return e.With == peer || e.With == me
	case e.With == "":
		return e.By == peer || e.By == me
	}
	return (e.By == me && e.With == peer) || (e.By == peer && e.With == me)
}

// PresenceEvent is the payload of `user_online` and `user_offline`.
type PresenceEvent struct {
	UserID string `json:"userId"`
}

// SeenEvent is the payload of `messages_seen`: a batch of message ids.
type SeenEvent []string
