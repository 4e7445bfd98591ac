package message

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chat-service/internal/conversation"
	"chat-service/internal/errs"
	"chat-service/internal/shared/db"
)

type Repository interface {
	// Append writes the message and applies the counter fan-out as one
	// logical unit.
	Append(ctx context.Context, m *Message) error
	ListByConversation(ctx context.Context, convID int64) ([]Message, error)
	SeenByConversation(ctx context.Context, convID int64) (map[int64][]string, error)
	MarkSeen(ctx context.Context, convID int64, readerID string, at time.Time) error
	LatestByIDs(ctx context.Context, ids []int64) (map[int64]conversation.LatestMessage, error)
}

type repo struct{ store *db.Store }

func NewRepository(s *db.Store) Repository { return &repo{store: s} }

// Append runs in a single transaction: create the ledger entry, point the
// conversation at it, bump unread for every other member, and reset the
// sender's row. The unread updates are single conditional statements so
// concurrent appends and mark-reads serialize at the store, not in process.
func (r *repo) Append(ctx context.Context, m *Message) error {
	err := r.store.Base.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		if err := tx.Model(&conversation.Conversation{}).
			Where("id = ?", m.ConversationID).
			Updates(map[string]any{"last_message_id": m.ID, "updated_at": m.CreatedAt}).Error; err != nil {
			return err
		}
		if err := tx.Model(&conversation.Member{}).
			Where("conversation_id = ? AND user_id <> ?", m.ConversationID, m.SenderID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&conversation.Member{}).
			Where("conversation_id = ? AND user_id = ?", m.ConversationID, m.SenderID).
			Updates(map[string]any{"unread_count": 0, "last_seen_at": m.CreatedAt}).Error
	})
	if err != nil {
		return errs.Transientf(err, "append message")
	}
	return nil
}

func (r *repo) ListByConversation(ctx context.Context, convID int64) ([]Message, error) {
	var out []Message
	err := r.store.Base.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, errs.Transientf(err, "list messages")
	}
	return out, nil
}

func (r *repo) SeenByConversation(ctx context.Context, convID int64) (map[int64][]string, error) {
	sub := r.store.Base.Model(&Message{}).Select("id").Where("conversation_id = ?", convID)
	var rows []MessageSeen
	err := r.store.Base.WithContext(ctx).
		Where("message_id IN (?)", sub).
		Find(&rows).Error
	if err != nil {
		return nil, errs.Transientf(err, "load seen sets")
	}
	out := make(map[int64][]string, len(rows))
	for _, s := range rows {
		out[s.MessageID] = append(out[s.MessageID], s.UserID)
	}
	return out, nil
}

// MarkSeen adds the reader to the seen set of every message in the
// conversation sent by someone else. One set-based statement; the conflict
// clause keeps the set monotone and the call idempotent.
func (r *repo) MarkSeen(ctx context.Context, convID int64, readerID string, at time.Time) error {
	err := r.store.Base.WithContext(ctx).Exec(`
		INSERT INTO message_seen (message_id, user_id, seen_at)
		SELECT m.id, ?, ? FROM messages m
		WHERE m.conversation_id = ? AND m.sender_id <> ?
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		readerID, at, convID, readerID).Error
	if err != nil {
		return errs.Transientf(err, "mark seen")
	}
	return nil
}

func (r *repo) LatestByIDs(ctx context.Context, ids []int64) (map[int64]conversation.LatestMessage, error) {
	out := make(map[int64]conversation.LatestMessage, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []Message
	if err := r.store.Base.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errs.Transientf(err, "load latest messages")
	}
	for _, m := range rows {
		out[m.ID] = conversation.LatestMessage{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			ImageRef:  m.ImageRef,
			CreatedAt: m.CreatedAt,
		}
	}
	return out, nil
}
