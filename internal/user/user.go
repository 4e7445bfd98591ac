package user

import "time"

// User is owned by the identity service; this service references it for
// sender resolution and best-effort presence flags.
type User struct {
	ID         string     `gorm:"primaryKey;size:64" json:"id"`
	Name       string     `gorm:"size:200" json:"name"`
	Email      string     `gorm:"size:200" json:"email,omitempty"`
	AvatarURL  string     `gorm:"size:512" json:"avatar_url,omitempty"`
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
