package user

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
	GetByID(ctx context.Context, id string) (*User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]User, error)
	Upsert(ctx context.Context, u *User) error
	SetOnline(ctx context.Context, id string) error
	SetOffline(ctx context.Context, id string, lastSeen time.Time) error
}

type repo struct{ store *db.Store }

func NewRepository(s *db.Store) Repository { return &repo{store: s} }

func (r *repo) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	if err := r.store.Base.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFoundf("user %s not found", id)
		}
		return nil, errs.Transientf(err, "load user")
	}
	return &u, nil
}

func (r *repo) GetByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []User
	if err := r.store.Base.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errs.Transientf(err, "load users")
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *repo) Upsert(ctx context.Context, u *User) error {
	err := r.store.Base.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "avatar_url"}),
	}).Create(u).Error
	if err != nil {
		return errs.Transientf(err, "upsert user")
	}
	return nil
}

func (r *repo) SetOnline(ctx context.Context, id string) error {
	return r.setPresence(ctx, id, map[string]any{"is_online": true})
}

func (r *repo) SetOffline(ctx context.Context, id string, lastSeen time.Time) error {
	return r.setPresence(ctx, id, map[string]any{"is_online": false, "last_seen_at": lastSeen})
}

func (r *repo) setPresence(ctx context.Context, id string, cols map[string]any) error {
	err := r.store.Base.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(cols).Error
	if err != nil {
		return errs.Transientf(err, "presence update")
	}
	return nil
}
