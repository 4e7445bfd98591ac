package idem

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-service/internal/redisx"
)

// Store remembers idempotency keys so retried sends do not append twice.
type Store interface {
	PutNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisStore struct{ r *redis.Client }

func New(rdb *redisx.Client) Store {
	return &redisStore{r: rdb.R}
}

func (s *redisStore) PutNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.r.SetNX(ctx, "idem:"+key, "1", ttl).Result()
}
