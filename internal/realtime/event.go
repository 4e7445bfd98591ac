package realtime

import (
	"encoding/json"

	"chat-service/internal/conversation"
	"chat-service/internal/message"
)

// EventType enumerates the closed set of live events. The dispatcher and
// clients share this contract; there are no ad hoc payload shapes.
type EventType string

const (
	EventConnected       EventType = "connected"
	EventMessageReceived EventType = "message-received"
	EventGroupRenamed    EventType = "group-renamed"
	EventGroupUpdated    EventType = "group-updated"
	EventGroupLeft       EventType = "group-left"
	EventMessageSeen     EventType = "message-seen"
	EventTyping          EventType = "typing"
	EventStopTyping      EventType = "stop-typing"
	EventUserOnline      EventType = "user-online"
	EventUserOffline     EventType = "user-offline"
)

// Event is one tagged variant on the live channel. Exactly the fields of
// the variant named by Type are populated.
type Event struct {
	Type           EventType          `json:"type"`
	ConversationID int64              `json:"conversation_id,omitempty"`
	Conversation   *conversation.View `json:"conversation,omitempty"`
	Message        *message.View      `json:"message,omitempty"`
	Relay          json.RawMessage    `json:"relay,omitempty"`
	UserID         string             `json:"user_id,omitempty"`
	UserName       string             `json:"user_name,omitempty"`
	Deleted        bool               `json:"deleted,omitempty"`
}

func (e Event) encode() []byte {
	data, _ := json.Marshal(e)
	return data
}

func connectedEvent() Event { return Event{Type: EventConnected} }

func messageReceivedEvent(v message.View) Event {
	return Event{Type: EventMessageReceived, ConversationID: v.ConversationID, Message: &v}
}

// relayEvent carries a client-originated message payload before ledger
// confirmation; ephemeral, never persisted.
func relayEvent(convID int64, raw json.RawMessage) Event {
	return Event{Type: EventMessageReceived, ConversationID: convID, Relay: raw}
}

func groupRenamedEvent(v *conversation.View) Event {
	return Event{Type: EventGroupRenamed, ConversationID: v.ID, Conversation: v}
}

func groupUpdatedEvent(v *conversation.View) Event {
	return Event{Type: EventGroupUpdated, ConversationID: v.ID, Conversation: v}
}

func groupLeftEvent(convID int64, v *conversation.View) Event {
	return Event{Type: EventGroupLeft, ConversationID: convID, Conversation: v, Deleted: v == nil}
}

func messageSeenEvent(convID int64, readerID string) Event {
	return Event{Type: EventMessageSeen, ConversationID: convID, UserID: readerID}
}

func typingEvent(convID int64, userName string) Event {
	return Event{Type: EventTyping, ConversationID: convID, UserName: userName}
}

func stopTypingEvent(convID int64) Event {
	return Event{Type: EventStopTyping, ConversationID: convID}
}

func userOnlineEvent(userID string) Event {
	return Event{Type: EventUserOnline, UserID: userID}
}

func userOfflineEvent(userID string) Event {
	return Event{Type: EventUserOffline, UserID: userID}
}
