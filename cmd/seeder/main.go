package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"chat-service/configs"
	"chat-service/internal/migrate"
	"chat-service/internal/shared/db"
	"chat-service/internal/shared/jwt"
	"chat-service/internal/user"
)

// Seeds demo users straight into the store, then drives the HTTP API with
// signed tokens: a direct thread, a group, some chatter.
func main() {
	gofakeit.Seed(time.Now().UnixNano())

	cfg := configs.LoadConfig()
	store := db.Open(cfg.DSN())
	if err := migrate.AutoMigrateAll(store); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	users := user.NewRepository(store)

	base := os.Getenv("CHAT_API_URL")
	if base == "" {
		base = "http://localhost" + cfg.AppPort
	}

	ids := make([]string, 0, 4)
	tokens := make(map[string]string, 4)
	for i := 0; i < 4; i++ {
		u := &user.User{
			ID:        fmt.Sprintf("seed-%s", gofakeit.LetterN(8)),
			Name:      gofakeit.Name(),
			Email:     gofakeit.Email(),
			AvatarURL: gofakeit.ImageURL(128, 128),
		}
		if err := users.Upsert(context.Background(), u); err != nil {
			log.Fatalf("seed user: %v", err)
		}
		tok, err := jwt.Sign(u.ID, 24*time.Hour)
		if err != nil {
			log.Fatalf("sign token: %v", err)
		}
		ids = append(ids, u.ID)
		tokens[u.ID] = tok
		log.Printf("user %s (%s)", u.Name, u.ID)
	}

	// Direct thread between the first two users.
	direct := post(base+"/conversations", tokens[ids[0]], map[string]any{"peer_id": ids[1]})
	directID := int64(direct["id"].(float64))
	log.Printf("direct conversation %d", directID)

	// Group with the remaining members.
	group := post(base+"/conversations/group", tokens[ids[0]], map[string]any{
		"name":       gofakeit.BuzzWord() + " crew",
		"member_ids": ids[1:],
	})
	groupID := int64(group["id"].(float64))
	log.Printf("group conversation %d", groupID)

	for i := 0; i < 6; i++ {
		sender := ids[i%2]
		post(base+"/messages", tokens[sender], map[string]any{
			"conversation_id": directID,
			"content":         gofakeit.HipsterSentence(8),
		})
	}
	for _, id := range ids {
		post(base+"/messages", tokens[id], map[string]any{
			"conversation_id": groupID,
			"content":         gofakeit.Quote(),
		})
	}
	log.Println("seeded")
}

func post(url, token string, body map[string]any) map[string]any {
	payload, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: status %d", url, resp.StatusCode)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out
}
