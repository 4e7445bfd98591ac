package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chat-service/internal/metrics"
	"chat-service/internal/shared/jwt"
)

// Frame is the closed set of client-originated live-channel messages.
type Frame struct {
	Type           string          `json:"type"`
	Token          string          `json:"token,omitempty"`
	ConversationID int64           `json:"conversation_id,omitempty"`
	UserName       string          `json:"user_name,omitempty"`
	RecipientIDs   []string        `json:"recipient_ids,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
}

const (
	frameSetup      = "setup"
	frameJoinChat   = "join-chat"
	frameTyping     = "typing"
	frameStopTyping = "stop-typing"
	frameNewMessage = "new-message"
	frameChatSeen   = "chat-seen"
)

// ReadMarker resets the caller's unread state; satisfied by the
// conversation service.
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID int64, userID string) error
}

// SocketHandler upgrades connections and runs each session through the
// anonymous -> identified lifecycle.
type SocketHandler struct {
	router   *Router
	presence *Presence
	reads    ReadMarker
	upgrader websocket.Upgrader
}

func NewSocketHandler(router *Router, presence *Presence, reads ReadMarker) *SocketHandler {
	return &SocketHandler{
		router:   router,
		presence: presence,
		reads:    reads,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}
	s := NewSession(ws)
	s.Start()
	metrics.OpenSessions.Inc()
	go h.readLoop(s, ws)
}

func (h *SocketHandler) readLoop(s *Session, ws *websocket.Conn) {
	defer h.teardown(s)

	ws.SetReadLimit(64 << 10)
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		h.handle(s, f)
	}
}

func (h *SocketHandler) handle(s *Session, f Frame) {
	switch f.Type {
	case frameSetup:
		h.setup(s, f.Token)
	case frameJoinChat:
		if s.UserID() == "" || f.ConversationID == 0 {
			return
		}
		h.router.JoinRoom(f.ConversationID, s)
	case frameTyping:
		if s.UserID() == "" {
			return
		}
		h.router.BroadcastRoom(f.ConversationID, typingEvent(f.ConversationID, f.UserName).encode(), s.UserID())
	case frameStopTyping:
		if s.UserID() == "" {
			return
		}
		h.router.BroadcastRoom(f.ConversationID, stopTypingEvent(f.ConversationID).encode(), s.UserID())
	case frameNewMessage:
		h.relay(s, f)
	case frameChatSeen:
		h.chatSeen(s, f.ConversationID)
	}
	// unknown frame types are ignored
}

// setup completes Connected -> Identified: bind the user, enter the
// personal channel, flag presence, and tell everyone. The connected ack is
// only sent after a successful bind; a bad token leaves the session
// anonymous and silent.
func (h *SocketHandler) setup(s *Session, token string) {
	uid, err := jwt.Parse(token)
	if err != nil || uid == "" {
		return
	}
	if !s.Identify(uid) {
		return
	}
	h.router.Identify(s)
	h.presence.Online(uid)
	_ = s.Send(connectedEvent().encode())
	h.router.NotifyAll(userOnlineEvent(uid).encode())
}

// relay fans a client-side message straight to recipients' personal
// channels ahead of ledger confirmation. Ephemeral: at most once, no retry,
// no ordering guarantee against the durable path.
func (h *SocketHandler) relay(s *Session, f Frame) {
	sender := s.UserID()
	if sender == "" || len(f.Message) == 0 {
		return
	}
	payload := relayEvent(f.ConversationID, f.Message).encode()
	for _, uid := range f.RecipientIDs {
		if uid == sender {
			continue
		}
		h.router.NotifyUser(uid, payload)
	}
}

// chatSeen resets the caller's unread counter from the live channel.
// Best-effort: a store failure is logged, never surfaced to the socket.
func (h *SocketHandler) chatSeen(s *Session, convID int64) {
	uid := s.UserID()
	if uid == "" || convID == 0 || h.reads == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.reads.MarkRead(ctx, convID, uid); err != nil {
		log.Printf("chat seen %d/%s: %v", convID, uid, err)
	}
}

// teardown runs on transport close. Only identified sessions produce an
// offline transition; anonymous disconnects are silent.
func (h *SocketHandler) teardown(s *Session) {
	metrics.OpenSessions.Dec()
	uid := s.UserID()
	h.router.Detach(s)
	s.Close(websocket.CloseNormalClosure, "bye")
	if uid == "" {
		return
	}
	if !h.router.Online(uid) {
		h.presence.Offline(uid)
		h.router.NotifyAll(userOfflineEvent(uid).encode())
	}
}
