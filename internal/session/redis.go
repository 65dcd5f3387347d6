package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tutorchat/internal/models"
)

const (
	sessionKeyPrefix = "chat_session:"
	lockKeyPrefix    = "chat_session_lock:"

	// A crashed holder releases the lock after this long.
	lockTTL          = 5 * time.Minute
	lockPollInterval = 100 * time.Millisecond
)

// RedisStore shares sessions between replicas. Each session is stored as
// JSON with a sliding TTL so it lives only as long as the browser session.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: redisClient, ttl: ttl}
}

func sessionKey(id uuid.UUID) string { return sessionKeyPrefix + id.String() }
func lockKey(id uuid.UUID) string    { return lockKeyPrefix + id.String() }

func (r *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	data, err := r.redis.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrCorrupt, id, err)
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	if err := r.redis.Set(ctx, sessionKey(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// unlockScript deletes the lock only if it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes the session lock with SET NX, polling until it is free.
func (r *RedisStore) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	key := lockKey(id)
	token := uuid.NewString()

	for {
		locked, err := r.redis.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to lock session %s: %w", id, err)
		}
		if locked {
			return func() {
				unlockScript.Run(context.Background(), r.redis, []string{key}, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
