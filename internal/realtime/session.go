package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	readWait   = 60 * time.Second
)

// Session wraps one websocket and coordinates outbound writes through a
// buffered channel. It starts anonymous and is bound to a user by the
// setup frame.
type Session struct {
	ID string

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	userID string
	rooms  map[int64]struct{}
}

func NewSession(ws *websocket.Conn) *Session {
	return &Session{
		ID:    uuid.NewString(),
		ws:    ws,
		send:  make(chan []byte, 128),
		done:  make(chan struct{}),
		rooms: make(map[int64]struct{}),
	}
}

// Identify binds the session to a user. Returns false if already bound to a
// different user.
func (s *Session) Identify(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" && s.userID != userID {
		return false
	}
	s.userID = userID
	return true
}

// UserID returns the bound user id, or "" while anonymous.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) trackRoom(convID int64) {
	s.mu.Lock()
	s.rooms[convID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) joinedRooms() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// Send enqueues a payload for delivery. If the client is slow and the
// buffer fills, the session is closed to keep backpressure bounded; the
// client's next full fetch reconciles anything missed.
func (s *Session) Send(payload []byte) error {
	select {
	case <-s.done:
		return errors.New("session closed")
	case s.send <- payload:
		return nil
	default:
		s.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("session buffer exceeded")
	}
}

// Start launches the write loop. Call exactly once per session.
func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) Close(code int, reason string) {
	s.once.Do(func() {
		close(s.done)
		if s.ws != nil {
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			_ = s.ws.Close()
		}
	})
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			if err := s.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) write(messageType int, payload []byte) error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.ws.WriteMessage(messageType, payload)
}
