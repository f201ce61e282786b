package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shopmargin/backend/internal/domain/sync"
)

// RedisSyncLock guards sync execution across instances. The in-process
// scheduler already coalesces duplicate requests; this lock extends the
// same single-flight rule to multi-instance deployments, where two
// schedulers could otherwise run the same (merchant, kind) pair at once.
type RedisSyncLock struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisSyncLock creates a Redis-backed sync lock
func NewRedisSyncLock(cfg RedisConfig) (*RedisSyncLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSyncLock{
		client:    client,
		keyPrefix: "sync:lock:",
	}, nil
}

// NewRedisSyncLockWithClient creates a lock with an existing Redis client.
// Useful for testing or when sharing a client across components.
func NewRedisSyncLockWithClient(client *redis.Client, keyPrefix string) *RedisSyncLock {
	if keyPrefix == "" {
		keyPrefix = "sync:lock:"
	}
	return &RedisSyncLock{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire tries to take the lock for a (merchant, kind) pair with a TTL.
// Returns true when this instance now holds the lock, false when another
// holder exists. Uses SETNX so the check and set are atomic.
func (l *RedisSyncLock) Acquire(ctx context.Context, merchantID uuid.UUID, kind sync.Kind, runID uuid.UUID, ttl time.Duration) (bool, error) {
	key := l.key(merchantID, kind)
	ok, err := l.client.SetNX(ctx, key, runID.String(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock, but only if this run still holds it. The TTL can
// expire mid-run and hand the lock to someone else; a blind DEL would then
// free the new holder's lock.
func (l *RedisSyncLock) Release(ctx context.Context, merchantID uuid.UUID, kind sync.Kind, runID uuid.UUID) error {
	key := l.key(merchantID, kind)
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	return script.Run(ctx, l.client, []string{key}, runID.String()).Err()
}

// Holder returns the run ID currently holding the lock, or uuid.Nil
func (l *RedisSyncLock) Holder(ctx context.Context, merchantID uuid.UUID, kind sync.Kind) (uuid.UUID, error) {
	val, err := l.client.Get(ctx, l.key(merchantID, kind)).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, nil
	}
	return id, nil
}

// Close closes the Redis client
func (l *RedisSyncLock) Close() error {
	return l.client.Close()
}

func (l *RedisSyncLock) key(merchantID uuid.UUID, kind sync.Kind) string {
	return l.keyPrefix + merchantID.String() + ":" + string(kind)
}
