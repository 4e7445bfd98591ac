package conversation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chat-service/internal/errs"
	"chat-service/internal/shared/db"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	FindDirect(ctx context.Context, key string) (*Conversation, error)
	CreateDirect(ctx context.Context, a, b string) (*Conversation, error)
	CreateGroup(ctx context.Context, c *Conversation, memberIDs []string) error
	UpdateName(ctx context.Context, id int64, name string) error
	AddMember(ctx context.Context, convID int64, userID string) error
	EnsureMembers(ctx context.Context, convID int64, userIDs ...string) error
	RemoveMember(ctx context.Context, convID int64, userID string) error
	Delete(ctx context.Context, convID int64) error
	ListByUser(ctx context.Context, userID string) ([]Conversation, error)
	StatesFor(ctx context.Context, userID string) (map[int64]Member, error)
	ResetUnread(ctx context.Context, convID int64, userID string, at time.Time) error
}

type repo struct{ store *db.Store }

func NewRepository(s *db.Store) Repository { return &repo{store: s} }

var memberConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
	DoNothing: true,
}

func (r *repo) GetByID(ctx context.Context, id int64) (*Conversation, error) {
	var c Conversation
	err := r.store.Base.WithContext(ctx).Preload("Members").First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("conversation %d not found", id)
		}
		return nil, errs.Transientf(err, "load conversation")
	}
	return &c, nil
}

func (r *repo) FindDirect(ctx context.Context, key string) (*Conversation, error) {
	var c Conversation
	err := r.store.Base.WithContext(ctx).Preload("Members").
		First(&c, "direct_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("direct conversation not found")
		}
		return nil, errs.Transientf(err, "lookup direct conversation")
	}
	return &c, nil
}

// CreateDirect inserts the pair conversation and both member rows. The
// unique direct_key absorbs races: a concurrent or retried call lands on
// the existing row and only upserts the member rows again.
func (r *repo) CreateDirect(ctx context.Context, a, b string) (*Conversation, error) {
	key := DirectKeyFor(a, b)
	c := &Conversation{IsGroup: false, DirectKey: &key}

	err := r.store.Base.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "direct_key"}},
			DoNothing: true,
		}).Create(c)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.First(c, "direct_key = ?", key).Error; err != nil {
				return err
			}
		}
		members := []Member{
			{ConversationID: c.ID, UserID: a},
			{ConversationID: c.ID, UserID: b},
		}
		return tx.Clauses(memberConflict).Create(&members).Error
	})
	if err != nil {
		return nil, errs.Transientf(err, "create direct conversation")
	}
	return r.GetByID(ctx, c.ID)
}

func (r *repo) CreateGroup(ctx context.Context, c *Conversation, memberIDs []string) error {
	err := r.store.Base.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		members := make([]Member, 0, len(memberIDs))
		for _, id := range memberIDs {
			members = append(members, Member{ConversationID: c.ID, UserID: id})
		}
		return tx.Clauses(memberConflict).Create(&members).Error
	})
	if err != nil {
		return errs.Transientf(err, "create group")
	}
	return nil
}

func (r *repo) UpdateName(ctx context.Context, id int64, name string) error {
	err := r.store.Base.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", id).Update("name", name).Error
	if err != nil {
		return errs.Transientf(err, "rename conversation")
	}
	return nil
}

func (r *repo) AddMember(ctx context.Context, convID int64, userID string) error {
	m := &Member{ConversationID: convID, UserID: userID}
	if err := r.store.Base.WithContext(ctx).Clauses(memberConflict).Create(m).Error; err != nil {
		return errs.Transientf(err, "add member")
	}
	return nil
}

func (r *repo) EnsureMembers(ctx context.Context, convID int64, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]Member, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, Member{ConversationID: convID, UserID: id})
	}
	if err := r.store.Base.WithContext(ctx).Clauses(memberConflict).Create(&members).Error; err != nil {
		return errs.Transientf(err, "ensure members")
	}
	return nil
}

func (r *repo) RemoveMember(ctx context.Context, convID int64, userID string) error {
	err := r.store.Base.WithContext(ctx).
		Delete(&Member{}, "conversation_id = ? AND user_id = ?", convID, userID).Error
	if err != nil {
		return errs.Transientf(err, "remove member")
	}
	return nil
}

// Delete destroys the conversation and all its member rows in one
// transaction (cascade ownership of the read state).
func (r *repo) Delete(ctx context.Context, convID int64) error {
	err := r.store.Base.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Member{}, "conversation_id = ?", convID).Error; err != nil {
			return err
		}
		return tx.Delete(&Conversation{}, "id = ?", convID).Error
	})
	if err != nil {
		return errs.Transientf(err, "delete conversation")
	}
	return nil
}

func (r *repo) ListByUser(ctx context.Context, userID string) ([]Conversation, error) {
	var out []Conversation
	err := r.store.Base.WithContext(ctx).
		Preload("Members").
		Joins("JOIN conversation_members cm ON cm.conversation_id = conversations.id AND cm.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, errs.Transientf(err, "list conversations")
	}
	return out, nil
}

func (r *repo) StatesFor(ctx context.Context, userID string) (map[int64]Member, error) {
	var rows []Member
	err := r.store.Base.WithContext(ctx).
		Where("user_id = ?", userID).Find(&rows).Error
	if err != nil {
		return nil, errs.Transientf(err, "load member states")
	}
	out := make(map[int64]Member, len(rows))
	for _, m := range rows {
		out[m.ConversationID] = m
	}
	return out, nil
}

// ResetUnread is a single idempotent upsert: insert-or-reset to zero with a
// fresh last-seen stamp. The row is created if absent rather than failing.
func (r *repo) ResetUnread(ctx context.Context, convID int64, userID string, at time.Time) error {
	m := &Member{ConversationID: convID, UserID: userID, UnreadCount: 0, LastSeenAt: &at}
	err := r.store.Base.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{"unread_count": 0, "last_seen_at": at}),
	}).Create(m).Error
	if err != nil {
		return errs.Transientf(err, "mark read")
	}
	return nil
}
