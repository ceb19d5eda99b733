package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "tillsync:lock:"

// releaseScript deletes the lock only if this holder still owns it, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a non-blocking lock for jobs. It always holds an in-process
// lock and, when a Redis client is configured, also a Redis key set with
// NX and a TTL so runs in other processes are excluded too.
type RunLock struct {
	mu     sync.Mutex
	held   map[string]bool
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock creates a run lock. client may be nil for a single process.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RunLock{
		held:   make(map[string]bool),
		client: client,
		ttl:    ttl,
	}
}

// TryAcquire takes key without waiting. acquired is false when another
// holder has it.
func (l *RunLock) TryAcquire(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	if !l.tryLocal(key) {
		return nil, false, nil
	}
	if l.client == nil {
		return func(context.Context) error {
			l.releaseLocal(key)
			return nil
		}, true, nil
	}

	token := uuid.NewString()
	redisKey := lockPrefix + key
	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		l.releaseLocal(key)
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		l.releaseLocal(key)
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		defer l.releaseLocal(key)
		return releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
	}
	return release, true, nil
}

func (l *RunLock) tryLocal(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

func (l *RunLock) releaseLocal(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
