package conversation

import (
	"sort"
	"time"
)

// Conversation is either a direct thread between exactly two users or a
// named group with one admin. DirectKey is the canonical pair key for
// direct threads; the unique index on it is what makes get-or-create
// idempotent under retry.
type Conversation struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	IsGroup       bool       `json:"is_group"`
	Name          string     `gorm:"size:200" json:"name,omitempty"`
	AdminID       string     `gorm:"size:64" json:"admin_id,omitempty"`
	DirectKey     *string    `gorm:"size:160;uniqueIndex" json:"-"`
	LastMessageID *int64     `json:"last_message_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Members       []Member   `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
}

// Member is both the roster row and the per-member read state: one row per
// (conversation, member) pair, created on add and deleted on removal, so
// roster/state parity holds by construction.
type Member struct {
	ConversationID int64      `gorm:"primaryKey" json:"conversation_id"`
	UserID         string     `gorm:"primaryKey;size:64" json:"user_id"`
	UnreadCount    int        `json:"unread_count"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Member) TableName() string { return "conversation_members" }

// DirectKeyFor builds the canonical key for a direct pair, order-insensitive.
func DirectKeyFor(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

func (c *Conversation) MemberIDs() []string {
	out := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		out = append(out, m.UserID)
	}
	return out
}

func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
