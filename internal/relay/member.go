package relay

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dkeye/VoiceChat/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrGone         = errors.New("member gone")
)

// SessionID identifies one relay connection. Clients see it as the peer id.
type SessionID string

type member struct {
	id   SessionID
	conn *websocket.Conn

	mu     sync.RWMutex
	send   chan []byte
	closed bool

	// chats is touched by the member's read goroutine only.
	chats map[domain.ChatName]struct{}
}

func newMember(id SessionID, conn *websocket.Conn, buffer int) *member {
	return &member{
		id:    id,
		conn:  conn,
		send:  make(chan []byte, buffer),
		chats: make(map[domain.ChatName]struct{}),
	}
}

func (m *member) TrySend(data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrGone
	}
	select {
	case m.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (m *member) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.send)
	_ = m.conn.Close()
}
