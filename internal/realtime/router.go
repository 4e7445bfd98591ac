package realtime

import (
	"sync"

	"chat-service/internal/metrics"
)

// channel is one addressable delivery set: all sessions of a user, or all
// sessions joined to a conversation. Each channel carries its own lock so
// traffic on unrelated conversations never serializes.
type channel struct {
	mu       sync.RWMutex
	removed  bool
	sessions map[string]*Session
}

func newChannel() *channel {
	return &channel{sessions: make(map[string]*Session)}
}

// Router is the process-wide registry of live sessions: personal channels
// keyed by user id and conversation channels keyed by conversation id.
type Router struct {
	users sync.Map // userID string -> *channel
	rooms sync.Map // conversationID int64 -> *channel
}

func NewRouter() *Router { return &Router{} }

// Identify adds the session to its user's personal channel. The session
// must already be bound to a user.
func (r *Router) Identify(s *Session) {
	if uid := s.UserID(); uid != "" {
		join(&r.users, uid, s)
	}
}

// JoinRoom subscribes the session to a conversation channel. Idempotent;
// membership is enforced by the directory before a client ever learns the
// conversation id, never here.
func (r *Router) JoinRoom(convID int64, s *Session) {
	join(&r.rooms, convID, s)
	s.trackRoom(convID)
}

// Detach removes the session from its personal channel and every joined
// room.
func (r *Router) Detach(s *Session) {
	if uid := s.UserID(); uid != "" {
		leave(&r.users, uid, s)
	}
	for _, convID := range s.joinedRooms() {
		leave(&r.rooms, convID, s)
	}
}

// NotifyUser delivers to every session of the user; returns the number of
// deliveries. Gone or slow sessions are dropped silently.
func (r *Router) NotifyUser(userID string, payload []byte) int {
	v, ok := r.users.Load(userID)
	if !ok {
		return 0
	}
	return v.(*channel).deliver(payload, "")
}

// BroadcastRoom delivers to every session joined to the conversation,
// excluding sessions of excludeUserID when non-empty.
func (r *Router) BroadcastRoom(convID int64, payload []byte, excludeUserID string) int {
	v, ok := r.rooms.Load(convID)
	if !ok {
		return 0
	}
	return v.(*channel).deliver(payload, excludeUserID)
}

// NotifyAll delivers to every identified session (presence notices).
func (r *Router) NotifyAll(payload []byte) {
	r.users.Range(func(_, v any) bool {
		v.(*channel).deliver(payload, "")
		return true
	})
}

// Online reports whether the user has at least one live session.
func (r *Router) Online(userID string) bool {
	v, ok := r.users.Load(userID)
	if !ok {
		return false
	}
	ch := v.(*channel)
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.sessions) > 0
}

func (ch *channel) deliver(payload []byte, excludeUserID string) int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	delivered := 0
	for _, s := range ch.sessions {
		if excludeUserID != "" && s.UserID() == excludeUserID {
			continue
		}
		if s.Send(payload) == nil {
			delivered++
		}
	}
	metrics.EventsDelivered.Add(float64(delivered))
	return delivered
}

func join[K comparable](m *sync.Map, key K, s *Session) {
	for {
		v, _ := m.LoadOrStore(key, newChannel())
		ch := v.(*channel)
		ch.mu.Lock()
		if ch.removed {
			// Lost a race with the last leaver; retry with a fresh channel.
			ch.mu.Unlock()
			continue
		}
		ch.sessions[s.ID] = s
		ch.mu.Unlock()
		return
	}
}

func leave[K comparable](m *sync.Map, key K, s *Session) {
	v, ok := m.Load(key)
	if !ok {
		return
	}
	ch := v.(*channel)
	ch.mu.Lock()
	delete(ch.sessions, s.ID)
	if len(ch.sessions) == 0 {
		ch.removed = true
		m.Delete(key)
	}
	ch.mu.Unlock()
}
