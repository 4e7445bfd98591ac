package realtime

import (
	"chat-service/internal/conversation"
	"chat-service/internal/message"
)

// Dispatcher turns durable mutation results into live events and routes
// them: new messages go to each recipient's personal channel, conversation
// mutations to the conversation channel. All deliveries are
// fire-and-continue; a recipient with no live session simply misses the
// event and reconciles on its next fetch.
type Dispatcher struct {
	router *Router
}

func NewDispatcher(r *Router) *Dispatcher { return &Dispatcher{router: r} }

var (
	_ message.Fanout      = (*Dispatcher)(nil)
	_ conversation.Fanout = (*Dispatcher)(nil)
)

// MessageCreated notifies every member's personal channel except the
// sender's with the resolved message.
func (d *Dispatcher) MessageCreated(v message.View, recipientIDs []string) {
	payload := messageReceivedEvent(v).encode()
	for _, uid := range recipientIDs {
		d.router.NotifyUser(uid, payload)
	}
}

// MessageSeen announces a read receipt on the conversation channel. The
// reader is excluded: it already knows, and everyone else needs the tick.
func (d *Dispatcher) MessageSeen(conversationID int64, readerID string) {
	d.router.BroadcastRoom(conversationID, messageSeenEvent(conversationID, readerID).encode(), readerID)
}

func (d *Dispatcher) GroupRenamed(v *conversation.View) {
	d.router.BroadcastRoom(v.ID, groupRenamedEvent(v).encode(), "")
}

func (d *Dispatcher) GroupUpdated(v *conversation.View) {
	d.router.BroadcastRoom(v.ID, groupUpdatedEvent(v).encode(), "")
}

// GroupLeft broadcasts the updated conversation, or a deletion marker when
// v is nil.
func (d *Dispatcher) GroupLeft(conversationID int64, v *conversation.View) {
	d.router.BroadcastRoom(conversationID, groupLeftEvent(conversationID, v).encode(), "")
}
