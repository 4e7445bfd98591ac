package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chat-service/internal/redisx"
	"chat-service/internal/shared/httpx"
)

type Limiter struct {
	R *redisx.Client
}

func New(r *redisx.Client) *Limiter { return &Limiter{R: r} }

// Allow counts the request against a fixed window: INCR plus EXPIRE, so the
// count resets when the window key lapses rather than sliding per request.
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := "rl:" + key
	pipe := l.R.R.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// LimitHTTP caps requests per authenticated user inside a fixed window.
// Redis being unreachable fails open: message flow beats throttling.
func (l *Limiter) LimitHTTP(limit int64, window time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := httpx.UserFromCtx(r)
		if err != nil || key == "" {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "missing_user")
			return
		}
		ok, n, e := l.Allow(r.Context(), key, limit, window)
		if e != nil {
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			httpx.WriteError(w, http.StatusTooManyRequests,
				fmt.Errorf("rate limit exceeded (count=%d, limit=%d)", n, limit),
				"rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}
