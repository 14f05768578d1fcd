package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate admits a key once per ttl. The reminder job uses it so a participant
// gets at most one payment_due reminder per cycle per day.
type Gate interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var (
	_ Gate = (*RedisGate)(nil)
	_ Gate = (*MemoryGate)(nil)
)

type RedisGate struct {
	client redis.UniversalClient
}

func NewRedisGate(client redis.UniversalClient) *RedisGate {
	return &RedisGate{client: client}
}

func (g *RedisGate) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, key, 1, ttl).Result()
}

// MemoryGate is the single-process gate used when redis is not configured.
type MemoryGate struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

func NewMemoryGate() *MemoryGate {
	return &MemoryGate{now: time.Now, expires: make(map[string]time.Time)}
}

func (g *MemoryGate) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.expires[key] = now.Add(ttl)
	return true, nil
}
