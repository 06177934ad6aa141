package wsrelay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readTimeout          = 60 * time.Second
	writeTimeout         = 10 * time.Second
	maxInboundMessageLen = 4 << 10
	heartbeatInterval    = 30 * time.Second
	sendQueueLen         = 64
)

var errClosed = errors.New("websocket session closed")

type session struct {
	conn      *websocket.Conn
	manager   *Manager
	id        string
	queue     chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, mgr *Manager, id string) *session {
	s := &session{
		conn:    conn,
		manager: mgr,
		id:      id,
		queue:   make(chan Message, sendQueueLen),
		closed:  make(chan struct{}),
	}
	conn.SetReadLimit(maxInboundMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return s
}

// enqueue reports false when the session is closed or its queue is full.
func (s *session) enqueue(msg Message) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

// writeLoop owns every write on the connection, including heartbeat pings.
func (s *session) writeLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case msg := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.cleanup(err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				s.cleanup(err)
				return
			}
		}
	}
}

func (s *session) run() {
	defer s.cleanup(errClosed)
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.cleanup(err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msg.Type == MessageTypePing {
			s.enqueue(Message{ID: msg.ID, Type: MessageTypePong})
		}
	}
}

func (s *session) cleanup(cause error) {
	s.closeOnce.Do(func() {
		close(s.closed)
		if errors.Is(cause, errStopped) {
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
		}
		_ = s.conn.Close()
		if s.manager != nil {
			s.manager.handleSessionClosed(s, cause)
		}
	})
}
