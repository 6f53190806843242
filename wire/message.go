package wire

import (
	"bytes"
	"encoding/json"
	"time"
)

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Rank orders statuses: sent < delivered < seen. Unknown or empty status ranks as sent.
func (s Status) Rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusSeen:
		return 2
	default:
		return 0
	}
}

// Upgrade returns the higher of s and to.
func (s Status) Upgrade(to Status) Status {
	if to.Rank() > s.Rank() {
		return to
	}
	if s == "" {
		return StatusSent
	}
	return s
}

// UserRef is a user id that decodes from either a bare id string or a populated
// user object such as `{"_id": "u1", "username": "bob"}`.
type UserRef string

func (u *UserRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = UserRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*u = UserRef(obj.ID)
	return nil
}

// Message is a chat message as sent by the server.
type Message struct {
	ID        string    `json:"_id"`
	Sender    UserRef   `json:"sender"`
	Receiver  UserRef   `json:"receiver"`
	Text      string    `json:"text,omitempty"`
	File      string    `json:"file,omitempty"`
	Audio     string    `json:"audio,omitempty"`
	Duration  int       `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`

	// Pending is set on local optimistic messages until the server echo arrives.
	Pending bool `json:"-"`
}

// Involves reports whether the message is between the given user and anyone.
func (m *Message) Involves(uid string) bool {
	return string(m.Sender) == uid || string(m.Receiver) == uid
}
