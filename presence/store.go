package presence

import (
	"sort"
	"sync"

	"github.com/golang/glog"
)

// Change is a presence transition of one user.
type Change struct {
	UserID string
	Online bool
}

// Store is the process-wide set of online users for one authenticated session.
// A user is absent until an online event arrives and stays online until an
// offline event arrives; there is no timeout demotion, so a user who dropped
// without an offline broadcast is reported online.
type Store struct {
	sync.RWMutex

	started bool
	online  map[string]struct{}
	subs    map[int]func(Change)
	nextSub int
}

func NewStore() *Store {
	return &Store{
		online: make(map[string]struct{}),
		subs:   make(map[int]func(Change)),
	}
}

// Start begins tracking. It is called on session start.
func (s *Store) Start() {
	s.Lock()
	s.started = true
	s.online = make(map[string]struct{})
	s.Unlock()
	glog.V(5).Info("presence: started")
}

// Stop forgets every user and detaches subscribers. It is called on logout;
// later events are ignored until the next Start.
func (s *Store) Stop() {
	s.Lock()
	s.started = false
	s.online = make(map[string]struct{})
	s.subs = make(map[int]func(Change))
	s.Unlock()
	glog.V(5).Info("presence: stopped")
}

func (s *Store) SetOnline(uid string) {
	s.set(uid, true)
}

func (s *Store) SetOffline(uid string) {
	s.set(uid, false)
}

func (s *Store) set(uid string, online bool) {
	if uid == "" {
		return
	}

	s.Lock()
	if !s.started {
		s.Unlock()
		glog.V(5).Infof("presence: ignore %s (online=%v), store not started", uid, online)
		return
	}
	_, was := s.online[uid]
	if was == online {
		s.Unlock()
		return
	}
	if online {
		s.online[uid] = struct{}{}
	} else {
		delete(s.online, uid)
	}
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.Unlock()

	c := Change{UserID: uid, Online: online}
	for _, fn := range subs {
		fn(c)
	}
}

func (s *Store) IsOnline(uid string) bool {
	s.RLock()
	_, ok := s.online[uid]
	s.RUnlock()
	return ok
}

// List returns online user ids, sorted.
func (s *Store) List() []string {
	s.RLock()
	out := make([]string, 0, len(s.online))
	for uid := range s.online {
		out = append(out, uid)
	}
	s.RUnlock()
	sort.Strings(out)
	return out
}

// Subscribe calls fn on every transition until the returned cancel is called.
// fn runs on the goroutine that delivered the event and must not block.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.Lock()
			delete(s.subs, id)
			s.Unlock()
		})
	}
}
