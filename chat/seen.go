package chat

import (
	"time"

	"github.com/mqy/minichat/wire"
)

var now = time.Now

// SeenTracker remembers which peer messages were already acknowledged in this
// session, so `seen_chat` is not re-sent for them. It is not persisted.
type SeenTracker struct {
	peer  string
	acked map[string]struct{}
}

func NewSeenTracker(peer string) *SeenTracker {
	return &SeenTracker{
		peer:  peer,
		acked: make(map[string]struct{}),
	}
}

// Pending returns the ids of messages authored by the peer that are not seen and
// not acknowledged yet, and records them as acknowledged.
func (s *SeenTracker) Pending(list []wire.Message) []string {
	var ids []string
	for i := range list {
		m := &list[i]
		if string(m.Sender) != s.peer || m.Status == wire.StatusSeen || m.Pending {
			continue
		}
		if _, ok := s.acked[m.ID]; ok {
			continue
		}
		s.acked[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	return ids
}

// Acked reports whether id was acknowledged.
func (s *SeenTracker) Acked(id string) bool {
	_, ok := s.acked[id]
	return ok
}
