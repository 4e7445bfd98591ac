package message

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"chat-service/internal/conversation"
	"chat-service/internal/errs"
	"chat-service/internal/metrics"
	"chat-service/internal/user"
)

// Fanout receives ledger mutations for live delivery. Calls must never
// block the appending handler.
type Fanout interface {
	MessageCreated(v View, recipientIDs []string)
	MessageSeen(conversationID int64, readerID string)
}

// Publisher is the event-bus seam; satisfied by the kafka writer.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

type Service interface {
	Append(ctx context.Context, senderID string, in SendReq) (*View, error)
	ListForConversation(ctx context.Context, convID int64) ([]View, error)
	MarkSeen(ctx context.Context, convID int64, readerID string) error
}

type service struct {
	repo  Repository
	convs conversation.Repository
	users user.Repository
	fan   Fanout
	pub   Publisher
}

func NewService(repo Repository, convs conversation.Repository, users user.Repository, fan Fanout, pub Publisher) Service {
	return &service{repo: repo, convs: convs, users: users, fan: fan, pub: pub}
}

func (s *service) Append(ctx context.Context, senderID string, in SendReq) (*View, error) {
	if strings.TrimSpace(in.Content) == "" && in.ImageRef == "" {
		return nil, errs.Validationf("message must have text or image")
	}
	conv, err := s.convs.GetByID(ctx, in.ConversationID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, errs.Validationf("conversation %d does not exist", in.ConversationID)
		}
		return nil, err
	}

	m := &Message{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        in.Content,
		ImageRef:       in.ImageRef,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.Append(ctx, m); err != nil {
		return nil, err
	}
	metrics.MessagesAppended.Inc()

	v := s.resolve(ctx, m)

	recipients := make([]string, 0, len(conv.Members))
	for _, member := range conv.Members {
		if member.UserID != senderID {
			recipients = append(recipients, member.UserID)
		}
	}
	if s.fan != nil {
		s.fan.MessageCreated(*v, recipients)
	}
	s.publish(v)
	return v, nil
}

func (s *service) ListForConversation(ctx context.Context, convID int64) ([]View, error) {
	if _, err := s.convs.GetByID(ctx, convID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListByConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	seen, err := s.repo.SeenByConversation(ctx, convID)
	if err != nil {
		return nil, err
	}

	senderIDs := make([]string, 0, len(msgs))
	dedup := map[string]struct{}{}
	for _, m := range msgs {
		if _, ok := dedup[m.SenderID]; !ok {
			dedup[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	senders, err := s.users.GetByIDs(ctx, senderIDs)
	if err != nil {
		return nil, err
	}

	out := make([]View, 0, len(msgs))
	for _, m := range msgs {
		v := viewOf(&m, senders[m.SenderID])
		v.SeenBy = seen[m.ID]
		if v.SeenBy == nil {
			v.SeenBy = []string{}
		}
		out = append(out, *v)
	}
	return out, nil
}

func (s *service) MarkSeen(ctx context.Context, convID int64, readerID string) error {
	if _, err := s.convs.GetByID(ctx, convID); err != nil {
		return err
	}
	if err := s.repo.MarkSeen(ctx, convID, readerID, time.Now().UTC()); err != nil {
		return err
	}
	if s.fan != nil {
		s.fan.MessageSeen(convID, readerID)
	}
	return nil
}

// resolve attaches sender identity; a missing user row degrades to a bare id
// rather than failing the append.
func (s *service) resolve(ctx context.Context, m *Message) *View {
	var sender user.User
	if u, err := s.users.GetByID(ctx, m.SenderID); err == nil {
		sender = *u
	} else {
		sender = user.User{ID: m.SenderID}
	}
	v := viewOf(m, sender)
	v.SeenBy = []string{}
	return v
}

// publish emits the created-message envelope to the event bus. Best-effort:
// the durable ledger is the source of truth, so a failed publish is logged
// and dropped.
func (s *service) publish(v *View) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.pub.Publish(ctx, strconv.FormatInt(v.ConversationID, 10), payload); err != nil {
			log.Printf("publish message event: %v", err)
		}
	}()
}

func viewOf(m *Message, sender user.User) *View {
	return &View{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     sender.Name,
		SenderAvatar:   sender.AvatarURL,
		Content:        m.Content,
		ImageRef:       m.ImageRef,
		CreatedAt:      m.CreatedAt,
	}
}
