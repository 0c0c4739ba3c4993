package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleet-api/pkg/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UserLocker is the named per-user serialization unit of the capacity engine.
// The capacity check, the eviction ranking and the state mutations for one
// user always run under this lock, so two concurrent activations for the same
// user serialize and the second one re-observes the first one's effect.
// The scope is one user's device set: there is no cross-user contention.
type UserLocker interface {
	WithUserLock(ctx context.Context, userID uint, fn func() error) error
}

// LocalUserLocker serializes per user inside a single process, with one
// semaphore per user id held in a sync.Map
type LocalUserLocker struct {
	locks sync.Map // userID -> chan struct{} (capacity 1)
}

// NewLocalUserLocker creates a new in-process user locker
func NewLocalUserLocker() *LocalUserLocker {
	return &LocalUserLocker{}
}

// WithUserLock runs fn while holding the user's lock. Returns
// ErrLockNotAcquired when the context expires before the lock is free.
func (l *LocalUserLocker) WithUserLock(ctx context.Context, userID uint, fn func() error) error {
	entry, _ := l.locks.LoadOrStore(userID, make(chan struct{}, 1))
	sem := entry.(chan struct{})

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ErrLockNotAcquired
	}
	defer func() { <-sem }()

	return fn()
}

// releaseScript deletes the lock key only when it still holds our token, so
// an expired lock taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisUserLocker serializes per user across processes with a Redis
// SET NX EX lock. Used when the service runs more than one replica.
type RedisUserLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisUserLocker creates a new Redis-backed user locker
func NewRedisUserLocker(client *redis.Client, ttl time.Duration) *RedisUserLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisUserLocker{client: client, ttl: ttl}
}

func userLockKey(userID uint) string {
	return fmt.Sprintf("user_lock:%d", userID)
}

// WithUserLock runs fn while holding the user's distributed lock. Acquisition
// polls with a short backoff until the context expires, then returns
// ErrLockNotAcquired so the caller can retry the whole operation.
func (l *RedisUserLocker) WithUserLock(ctx context.Context, userID uint, fn func() error) error {
	key := userLockKey(userID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire user lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ErrLockNotAcquired
		}
	}

	defer func() {
		// Release outside the request context: the lock must be freed even
		// when fn consumed the whole deadline.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			logging.Errorf("Failed to release user lock - user: %d, error: %v", userID, err)
		}
	}()

	return fn()
}
