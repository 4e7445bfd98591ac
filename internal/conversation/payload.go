package conversation

import (
	"time"

	"chat-service/internal/user"
)

type DirectReq struct {
	PeerID string `json:"peer_id" validate:"required"`
}

type GroupReq struct {
	Name      string   `json:"name" validate:"required"`
	MemberIDs []string `json:"member_ids" validate:"required"`
}

type RenameReq struct {
	Name string `json:"name" validate:"required"`
}

type MemberReq struct {
	ConversationID int64  `json:"conversation_id" validate:"required"`
	UserID         string `json:"user_id" validate:"required"`
}

type LeaveReq struct {
	ConversationID int64 `json:"conversation_id" validate:"required"`
}

// View is the conversation as callers and the live channel see it: members
// and admin resolved, the caller's own unread counter, and the latest
// message denormalized for listing.
type View struct {
	ID          int64          `json:"id"`
	IsGroup     bool           `json:"is_group"`
	Name        string         `json:"name,omitempty"`
	AdminID     string         `json:"admin_id,omitempty"`
	Members     []user.User    `json:"members"`
	UnreadCount int            `json:"unread_count"`
	LastMessage *LatestMessage `json:"last_message,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// LatestMessage is the listing preview of a conversation's newest message.
type LatestMessage struct {
	ID        int64     `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content,omitempty"`
	ImageRef  string    `json:"image_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LeaveResult distinguishes "member removed" from "conversation destroyed".
type LeaveResult struct {
	Deleted      bool  `json:"deleted"`
	Conversation *View `json:"conversation,omitempty"`
}
