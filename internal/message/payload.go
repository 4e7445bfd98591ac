package message

import "time"

type SendReq struct {
	ConversationID int64  `json:"conversation_id" validate:"required"`
	Content        string `json:"content"`
	ImageRef       string `json:"image_ref"`
}

// View is a ledger entry with its sender resolved and the seen-by set
// attached; this is the shape both the REST surface and the live channel
// carry.
type View struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	SenderAvatar   string    `json:"sender_avatar,omitempty"`
	Content        string    `json:"content,omitempty"`
	ImageRef       string    `json:"image_ref,omitempty"`
	SeenBy         []string  `json:"seen_by"`
	CreatedAt      time.Time `json:"created_at"`
}
