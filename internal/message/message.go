package message

import "time"

// Message is an immutable ledger entry. At least one of Content/ImageRef is
// non-empty; only the seen set (MessageSeen rows) grows after creation.
type Message struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	ConversationID int64     `gorm:"index" json:"conversation_id"`
	SenderID       string    `gorm:"size:64" json:"sender_id"`
	Content        string    `json:"content,omitempty"`
	ImageRef       string    `gorm:"size:512" json:"image_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageSeen is one element of a message's seen-by set. Inserted with
// ON CONFLICT DO NOTHING, so the set only ever grows.
type MessageSeen struct {
	MessageID int64     `gorm:"primaryKey;index" json:"message_id"`
	UserID    string    `gorm:"primaryKey;size:64;index" json:"user_id"`
	SeenAt    time.Time `json:"seen_at"`
}

func (MessageSeen) TableName() string { return "message_seen" }
