package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"sendflow/internal/apperrors"
)

// AttemptLimiter bounds how often a subject may guess verification codes.
// Consume returns apperrors.ErrTooManyAttempts once the budget is spent.
type AttemptLimiter interface {
	Consume(ctx context.Context, scope, subject string) error
}

var attemptLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisAttemptLimiter is a fixed-window counter shared by every instance.
type RedisAttemptLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisAttemptLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisAttemptLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "sendflow:attempts"
	}
	return &RedisAttemptLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

func (l *RedisAttemptLimiter) Consume(ctx context.Context, scope, subject string) error {
	if l.limit <= 0 || l.window <= 0 {
		return nil
	}
	windowMs := l.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", l.prefix, scope, subject)
	count, err := attemptLimitScript.Run(ctx, l.client, []string{key}, windowMs).Int64()
	if err != nil {
		return fmt.Errorf("attempt limiter unavailable: %w", err)
	}
	if count > int64(l.limit) {
		return apperrors.ErrTooManyAttempts
	}
	return nil
}

// LocalAttemptLimiter keeps one token bucket per subject in process memory.
// Used when Redis is not configured.
type LocalAttemptLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    int
	window   time.Duration
}

func NewLocalAttemptLimiter(limit int, window time.Duration) *LocalAttemptLimiter {
	return &LocalAttemptLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		window:   window,
	}
}

func (l *LocalAttemptLimiter) Consume(_ context.Context, scope, subject string) error {
	if l.limit <= 0 || l.window <= 0 {
		return nil
	}
	key := scope + ":" + subject

	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	if !limiter.Allow() {
		return apperrors.ErrTooManyAttempts
	}
	return nil
}
