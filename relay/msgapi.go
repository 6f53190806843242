package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"

	"github.com/mqy/minichat/auth"
	"github.com/mqy/minichat/store"
	"github.com/mqy/minichat/wire"
)

// Issuer issues the bearer token of uid.
type Issuer func(uid string) (string, error)

// MessageApi serves the REST subset a chat client needs.
type MessageApi struct {
	hub        *Hub
	store      store.IMessageStore
	authClient auth.Client
	issue      Issuer
	validate   *validator.Validate
}

func NewApi(hub *Hub, msgStore store.IMessageStore, authClient auth.Client, issue Issuer) *MessageApi {
	return &MessageApi{
		hub:        hub,
		store:      msgStore,
		authClient: authClient,
		issue:      issue,
		validate:   validator.New(),
	}
}

// Register adds the REST routes to mux.
func (a *MessageApi) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/login", a.login)
	mux.HandleFunc("/api/user/me", a.authed(http.MethodGet, a.me))
	mux.HandleFunc("/api/messages/history/", a.authed(http.MethodGet, a.history))
	mux.HandleFunc("/api/messages/clear/", a.authed(http.MethodDelete, a.clear))
	mux.HandleFunc("/api/messages/", a.authed(http.MethodDelete, a.delete))
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

type modeReq struct {
	Mode string `json:"mode" validate:"omitempty,oneof=me everyone"`
}

type userResp struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// login is a development login: the uid is the local part of the email and
// any password is accepted.
func (a *MessageApi) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginReq
	if err := a.readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	uid := strings.ToLower(req.Email[:strings.Index(req.Email, "@")])
	token, err := a.issue(uid)
	if err != nil {
		glog.Errorf("login(): issue token error: %v", err)
		writeError(w, http.StatusInternalServerError, "issue token error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "login successful",
		"token":   token,
		"user":    &userResp{ID: uid, Username: uid, Email: req.Email},
	})
}

func (a *MessageApi) me(w http.ResponseWriter, r *http.Request, uid string) {
	writeJSON(w, http.StatusOK, &userResp{ID: uid, Username: uid})
}

func (a *MessageApi) history(w http.ResponseWriter, r *http.Request, uid string) {
	peer := strings.TrimPrefix(r.URL.Path, "/api/messages/history/")
	if peer == "" {
		writeError(w, http.StatusBadRequest, "missing peer")
		return
	}
	list, err := a.store.History(r.Context(), uid, peer)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *MessageApi) delete(w http.ResponseWriter, r *http.Request, uid string) {
	id := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req modeReq
	if err := a.readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.store.Delete(r.Context(), id, uid, req.Mode)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	ref := &wire.MessageRef{MessageID: id}
	a.hub.push(uid, wire.EventMessageDeleted, ref)
	if req.Mode == wire.ModeEveryone {
		peer := string(m.Receiver)
		if peer == uid {
			peer = string(m.Sender)
		}
		if peer != uid {
			a.hub.push(peer, wire.EventMessageDeleted, ref)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (a *MessageApi) clear(w http.ResponseWriter, r *http.Request, uid string) {
	peer := strings.TrimPrefix(r.URL.Path, "/api/messages/clear/")
	if peer == "" {
		writeError(w, http.StatusBadRequest, "missing peer")
		return
	}
	var req modeReq
	if err := a.readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.Clear(r.Context(), uid, peer, req.Mode); err != nil {
		writeStoreError(w, err)
		return
	}

	a.hub.push(uid, wire.EventChatCleared, &wire.ChatClearedEvent{By: uid, With: peer})
	if req.Mode == wire.ModeEveryone && peer != uid {
		a.hub.push(peer, wire.EventChatCleared, &wire.ChatClearedEvent{By: uid, With: peer})
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cleared"})
}

func (a *MessageApi) authed(method string, next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		uid, err := a.authClient.Auth(r)
		if err != nil {
			glog.V(5).Infof("%s %s: authenticate error: %v", r.Method, r.URL.Path, err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, uid)
	}
}

// readJSON decodes and validates the body. An empty body is a zero value.
func (a *MessageApi) readJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return a.validate.Struct(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		glog.Errorf("store error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("write response error: %v", err)
	}
}
