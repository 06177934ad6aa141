// Package wsrelay pushes publish progress events to browser clients over websocket.
package wsrelay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/ebooklister/ebooklister/internal/publish"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// DefaultPath is where the progress stream is served when Options.Path is empty.
const DefaultPath = "/ws/jobs"

var errStopped = errors.New("wsrelay: manager stopped")

// Manager exposes a websocket endpoint that fans publish progress out to every
// connected client.
type Manager struct {
	path      string
	upgrader  websocket.Upgrader
	sessions  map[string]*session
	sessMutex sync.RWMutex

	onConnected    func(string)
	onDisconnected func(string, error)
}

// Options configures a Manager instance.
type Options struct {
	Path string
	// CheckOrigin decides whether a cross-origin upgrade is accepted. Nil keeps the
	// gorilla default, which only accepts same-host origins.
	CheckOrigin    func(*http.Request) bool
	OnConnected    func(string)
	OnDisconnected func(string, error)
}

// NewManager builds a progress broadcaster with the supplied options.
func NewManager(opts Options) *Manager {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Manager{
		path:     path,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		onConnected:    opts.OnConnected,
		onDisconnected: opts.OnDisconnected,
	}
}

// Path returns the HTTP path the manager expects for websocket upgrades.
func (m *Manager) Path() string {
	if m == nil {
		return DefaultPath
	}
	return m.path
}

// Handler exposes an http.Handler that upgrades connections to websocket sessions.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(m.handleWebsocket)
}

// Count reports the number of connected clients.
func (m *Manager) Count() int {
	m.sessMutex.RLock()
	defer m.sessMutex.RUnlock()
	return len(m.sessions)
}

// Emit queues ev for every connected client. Slow clients drop events rather than
// stall the pipeline.
func (m *Manager) Emit(ev publish.Event) {
	if m == nil {
		return
	}
	msg := Message{ID: ev.JobID, Type: MessageTypeProgress, Payload: &ev}
	m.sessMutex.RLock()
	defer m.sessMutex.RUnlock()
	for _, s := range m.sessions {
		if !s.enqueue(msg) {
			log.Debugf("wsrelay: dropped %s event for client %s", ev.Status, s.id)
		}
	}
}

// Stop gracefully closes all active websocket sessions.
func (m *Manager) Stop(_ context.Context) error {
	m.sessMutex.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	clear(m.sessions)
	m.sessMutex.Unlock()

	for _, sess := range sessions {
		sess.cleanup(errStopped)
	}
	return nil
}

func (m *Manager) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.URL != nil && r.URL.Path != m.Path() {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("wsrelay: upgrade failed: %v", err)
		return
	}
	s := newSession(conn, m, uuid.NewString())

	m.sessMutex.Lock()
	m.sessions[s.id] = s
	m.sessMutex.Unlock()

	log.Debugf("wsrelay: client %s connected from %s", s.id, r.RemoteAddr)
	if m.onConnected != nil {
		m.onConnected(s.id)
	}
	s.enqueue(Message{ID: s.id, Type: MessageTypeHello})

	go s.writeLoop()
	go s.run()
}

func (m *Manager) handleSessionClosed(s *session, cause error) {
	m.sessMutex.Lock()
	if cur, ok := m.sessions[s.id]; ok && cur == s {
		delete(m.sessions, s.id)
	}
	m.sessMutex.Unlock()
	log.Debugf("wsrelay: client %s disconnected: %v", s.id, cause)
	if m.onDisconnected != nil {
		m.onDisconnected(s.id, cause)
	}
}
