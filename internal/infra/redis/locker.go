package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizgame-service/internal/logger"
)

// ErrLockTimeout is returned when a lock cannot be taken before the wait budget runs out.
var ErrLockTimeout = errors.New("redis: lock wait timed out")

// release deletes the key only if it still carries our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes engine transitions across instances with SET NX PX
// locks. The TTL bounds how long a crashed holder can block a key.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
	log    *logger.Logger
}

func NewLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{
		client: client,
		ttl:    ttl,
		retry:  10 * time.Millisecond,
		wait:   ttl,
		log:    log.With("component", "redis.Locker"),
	}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := lockKey(key)
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire %s: %w", key, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := release.Run(ctx, l.client, []string{k}, token).Err(); err != nil {
			l.log.Warn("release lock", "key", key, "error", err)
		}
	}, nil
}

func lockKey(key string) string {
	return "lock:" + key
}
