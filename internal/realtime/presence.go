package realtime

import (
	"context"
	"log"
	"time"

	"chat-service/internal/user"
)

// Presence records online/offline transitions in the durable store.
// Best-effort only: a store outage is logged and swallowed, never failing
// or blocking the session that triggered it.
type Presence struct {
	users user.Repository
}

func NewPresence(users user.Repository) *Presence { return &Presence{users: users} }

func (p *Presence) Online(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.users.SetOnline(ctx, userID); err != nil {
		log.Printf("presence online %s: %v", userID, err)
	}
}

func (p *Presence) Offline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.users.SetOffline(ctx, userID, time.Now().UTC()); err != nil {
		log.Printf("presence offline %s: %v", userID, err)
	}
}
