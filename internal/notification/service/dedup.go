package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper decides whether an (event, recipient) pair has been delivered
// before. At-least-once event delivery makes duplicates normal; the deduper
// collapses them so a recipient sees each event once.
type Deduper interface {
	FirstDelivery(ctx context.Context, eventID, recipient string) (bool, error)
}

// RedisDeduper implements Deduper on redis SetNX with a TTL, so dedup state
// survives restarts and is shared between instances.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a redis-backed deduper
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// FirstDelivery returns true exactly once per (event, recipient) within the
// TTL window.
func (d *RedisDeduper) FirstDelivery(ctx context.Context, eventID, recipient string) (bool, error) {
	key := "notify:" + eventID + ":" + recipient
	return d.client.SetNX(ctx, key, 1, d.ttl).Result()
}

// MemoryDeduper is an in-process Deduper for tests and single-node setups.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryDeduper creates an in-memory deduper
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

// FirstDelivery implements Deduper.
func (d *MemoryDeduper) FirstDelivery(ctx context.Context, eventID, recipient string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := eventID + ":" + recipient
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = struct{}{}
	return true, nil
}
