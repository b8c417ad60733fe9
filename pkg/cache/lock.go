package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock already held")

// Locker grants exclusive, expiring ownership of a key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX, shared across API replicas.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker builds a distributed locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "examslot:lock:"}
}

// Acquire returns ErrLockHeld when the key is taken.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	fullKey := l.prefix + key
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
	}, nil
}

// LocalLocker is an in-process Locker for single-replica deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

// NewLocalLocker constructs an in-memory locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), nowFn: time.Now}
}

// Acquire returns ErrLockHeld while an unexpired holder exists.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrLockHeld
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if current, ok := l.held[key]; ok && current.Equal(expires) {
				delete(l.held, key)
			}
		})
	}, nil
}
