// Package relaytest runs an in-memory relay for tests. It speaks the relay's
// HTTP and WebSocket protocol and verifies every session token the way the
// production relay does.
package relaytest

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sealdrop/client-go/internal/api"
	"github.com/sealdrop/client-go/internal/crypto"
	"github.com/sealdrop/client-go/internal/token"
)

// Relay is an httptest relay. It is closed by t.Cleanup.
type Relay struct {
	t        testing.TB
	server   *httptest.Server
	verifier *token.Verifier
	upgrader websocket.Upgrader

	mu      sync.Mutex
	users   map[string]*api.UserRecord
	byRcpt  map[string]string
	inbox   map[string][]*crypto.Envelope
	convs   map[string][]*crypto.Envelope
	streams map[string][]*stream
}

type stream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *stream) send(frameType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(api.PushFrame{Type: frameType, Data: raw})
}

// New starts a relay.
func New(t testing.TB) *Relay {
	t.Helper()
	r := &Relay{
		t:       t,
		users:   make(map[string]*api.UserRecord),
		byRcpt:  make(map[string]string),
		inbox:   make(map[string][]*crypto.Envelope),
		convs:   make(map[string][]*crypto.Envelope),
		streams: make(map[string][]*stream),
	}
	r.verifier = token.NewVerifier(token.KeyResolverFunc(r.signingKey))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", r.handleRegister)
	mux.HandleFunc("POST /login", r.authed(token.ActLogin, r.handleLogin))
	mux.HandleFunc("GET /users", r.authed(token.ActUsersList, r.handleUsers))
	mux.HandleFunc("POST /messages", r.authed(token.ActMessagesSend, r.handlePostMessage))
	mux.HandleFunc("GET /inbox", r.authed(token.ActInboxFetch, r.handleInbox))
	mux.HandleFunc("GET /conversations/{token}", r.authed(token.ActConversationFetch, r.handleConversation))
	mux.HandleFunc("GET /ws/inbox", r.handleStream)

	r.server = httptest.NewServer(mux)
	t.Cleanup(r.server.Close)
	return r
}

// URL returns the relay base URL.
func (r *Relay) URL() string {
	return r.server.URL
}

func (r *Relay) signingKey(_ context.Context, email string) (ed25519.PublicKey, error) {
	r.mu.Lock()
	rec, ok := r.users[crypto.NormalizeEmail(email)]
	r.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown user")
	}
	pub, err := crypto.DecodeBase64(rec.SignPubDet)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(pub), nil
}

type authedHandler func(w http.ResponseWriter, req *http.Request, email string)

func (r *Relay) authed(action string, next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		email := req.Header.Get("X-User-Email")
		raw := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if _, err := r.verifier.Verify(req.Context(), raw, email, action); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, req, crypto.NormalizeEmail(email))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (r *Relay) handleRegister(w http.ResponseWriter, req *http.Request) {
	var body api.RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := crypto.NormalizeEmail(body.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[email]; ok {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	rec := &api.UserRecord{
		UserOut: api.UserOut{
			Email:       email,
			RecipientID: uuid.NewString(),
			EncPubRand:  body.EncPubRand,
			SignPubDet:  body.SignPubDet,
		},
		CMaster: body.CMaster,
		Version: body.Version,
	}
	r.users[email] = rec
	r.byRcpt[rec.RecipientID] = email
	writeJSON(w, http.StatusOK, rec.UserOut)
}

func (r *Relay) handleLogin(w http.ResponseWriter, _ *http.Request, email string) {
	r.mu.Lock()
	rec := *r.users[email]
	r.mu.Unlock()
	writeJSON(w, http.StatusOK, rec)
}

func (r *Relay) handleUsers(w http.ResponseWriter, _ *http.Request, _ string) {
	r.mu.Lock()
	out := make([]api.UserOut, 0, len(r.users))
	for _, rec := range r.users {
		out = append(out, rec.UserOut)
	}
	r.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (r *Relay) handlePostMessage(w http.ResponseWriter, req *http.Request, _ string) {
	var env crypto.Envelope
	if err := json.NewDecoder(req.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.store(&env); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.SendResult{Accepted: true})
}

// store files env under its recipient and conversation and pushes it to open
// streams of the recipient.
func (r *Relay) store(env *crypto.Envelope) error {
	r.mu.Lock()
	if _, ok := r.byRcpt[env.RecipientID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown rcpt_id %s", env.RecipientID)
	}
	env.ID = uuid.NewString()
	env.TSServer = time.Now().UTC()
	r.inbox[env.RecipientID] = append(r.inbox[env.RecipientID], env)
	r.convs[env.ConvToken] = append(r.convs[env.ConvToken], env)
	streams := append([]*stream(nil), r.streams[env.RecipientID]...)
	r.mu.Unlock()

	for _, s := range streams {
		s.send(api.FrameEnvelope, env)
	}
	return nil
}

// Inject stores env as if an arbitrary client had posted it.
func (r *Relay) Inject(env *crypto.Envelope) {
	r.t.Helper()
	if err := r.store(env); err != nil {
		r.t.Fatalf("inject: %v", err)
	}
}

func (r *Relay) handleInbox(w http.ResponseWriter, req *http.Request, email string) {
	rcptID := req.URL.Query().Get("rcpt_id")

	r.mu.Lock()
	owner := r.byRcpt[rcptID]
	envs := append([]*crypto.Envelope(nil), r.inbox[rcptID]...)
	r.mu.Unlock()

	if owner != email {
		writeError(w, http.StatusForbidden, "not your inbox")
		return
	}
	writePage(w, req, envs)
}

func (r *Relay) handleConversation(w http.ResponseWriter, req *http.Request, _ string) {
	r.mu.Lock()
	envs := append([]*crypto.Envelope(nil), r.convs[req.PathValue("token")]...)
	r.mu.Unlock()
	writePage(w, req, envs)
}

// writePage serves envs from the offset in cursor. next_cursor is set only
// while more envelopes remain.
func writePage(w http.ResponseWriter, req *http.Request, envs []*crypto.Envelope) {
	start, _ := strconv.Atoi(req.URL.Query().Get("cursor"))
	limit, err := strconv.Atoi(req.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	start = min(start, len(envs))
	end := min(start+limit, len(envs))

	page := api.Page{Envelopes: envs[start:end]}
	if end < len(envs) {
		page.NextCursor = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, page)
}

func (r *Relay) handleStream(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	claims, err := r.verifier.Verify(req.Context(), q.Get("token"), q.Get("email"), token.ActWSOpen)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	rcptID, _ := claims.Extra["rcpt_id"].(string)

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// The backlog frame is written before the stream becomes visible to
	// store, so live envelopes always follow it.
	s := &stream{conn: conn}
	s.mu.Lock()
	r.mu.Lock()
	backlog := append([]*crypto.Envelope{}, r.inbox[rcptID]...)
	r.streams[rcptID] = append(r.streams[rcptID], s)
	r.mu.Unlock()
	raw, _ := json.Marshal(backlog)
	err = conn.WriteJSON(api.PushFrame{Type: api.FrameInboxInit, Data: raw})
	s.mu.Unlock()

	defer func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.streams[rcptID]
		for i, other := range list {
			if other == s {
				r.streams[rcptID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}()

	if err != nil {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// StreamCount returns the number of open push streams for rcptID.
func (r *Relay) StreamCount(rcptID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams[rcptID])
}
