package relay

import (
	"sort"
	"sync"
)

// memory handler store for local sessions.
type HandlerStore struct {
	sync.RWMutex
	handlers map[string]*Handler
	// uid -> number of sessions
	users map[string]int
}

func newHandlerStore() *HandlerStore {
	return &HandlerStore{
		handlers: make(map[string]*Handler),
		users:    make(map[string]int),
	}
}

// add reports whether handler is the first session of its user.
func (hs *HandlerStore) add(handler *Handler) bool {
	hs.Lock()
	defer hs.Unlock()
	sid := handler.session.Sid
	if _, ok := hs.handlers[sid]; ok {
		return false
	}
	hs.handlers[sid] = handler
	uid := handler.session.Uid
	hs.users[uid]++
	return hs.users[uid] == 1
}

// del returns the uid of the removed session and whether it was the last one of that user.
func (hs *HandlerStore) del(sid string) (string, bool) {
	hs.Lock()
	defer hs.Unlock()
	h, ok := hs.handlers[sid]
	if !ok {
		return "", false
	}
	delete(hs.handlers, sid)
	uid := h.session.Uid
	hs.users[uid]--
	if hs.users[uid] <= 0 {
		delete(hs.users, uid)
		return uid, true
	}
	return uid, false
}

func (hs *HandlerStore) getByUid(uid string) []*Handler {
	hs.RLock()
	defer hs.RUnlock()

	var out []*Handler
	for _, h := range hs.handlers {
		if h.session.Uid == uid {
			out = append(out, h)
		}
	}
	return out
}

func (hs *HandlerStore) all() []*Handler {
	hs.RLock()
	defer hs.RUnlock()
	out := make([]*Handler, 0, len(hs.handlers))
	for _, h := range hs.handlers {
		out = append(out, h)
	}
	return out
}

func (hs *HandlerStore) online(uid string) bool {
	hs.RLock()
	defer hs.RUnlock()
	return hs.users[uid] > 0
}

// uids returns online users, sorted.
func (hs *HandlerStore) uids() []string {
	hs.RLock()
	defer hs.RUnlock()
	out := make([]string, 0, len(hs.users))
	for uid := range hs.users {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

func (hs *HandlerStore) shallowCopySessions() []*Session {
	hs.RLock()
	defer hs.RUnlock()
	out := make([]*Session, 0, len(hs.handlers))
	for _, h := range hs.handlers {
		out = append(out, h.session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime < out[j].CreateTime })
	return out
}

func (hs *HandlerStore) close() {
	for _, h := range hs.all() {
		h.close(ServerStop)
	}
	hs.Lock()
	hs.handlers = make(map[string]*Handler)
	hs.users = make(map[string]int)
	hs.Unlock()
}
