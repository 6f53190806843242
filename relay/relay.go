package relay

import (
	"net/http"

	"github.com/mqy/minichat/auth"
	"github.com/mqy/minichat/store"
)

// Relay is a development chat backend: the websocket hub at `/ws` and the
// message REST subset under `/api`.
type Relay struct {
	Hub *Hub
	Api *MessageApi
	mux *http.ServeMux
}

func New(authClient auth.Client, msgStore store.IMessageStore, issue Issuer) *Relay {
	hub := NewHub(authClient, msgStore)
	msgApi := NewApi(hub, msgStore, authClient, issue)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	msgApi.Register(mux)

	return &Relay{Hub: hub, Api: msgApi, mux: mux}
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close closes every websocket session. The store is owned by the caller.
func (r *Relay) Close() {
	r.Hub.Close()
}
