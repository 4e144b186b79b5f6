package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// KeyDedup is dedup:{consumer}:{event_id}.
const KeyDedup = "dedup:%s:%s"

// Deduper remembers which events a consumer has handled.
type Deduper interface {
	// FirstSeen records id and reports whether it was new.
	FirstSeen(ctx context.Context, id string) bool
}

// RedisDeduper marks events with SET NX so every replica of a consumer
// group shares one view. A Redis error counts as first seen, so an outage
// can duplicate a notification but never drops one.
type RedisDeduper struct {
	rdb      redis.Cmdable
	consumer string
	ttl      time.Duration
}

func NewRedisDeduper(rdb redis.Cmdable, consumer string, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, consumer: consumer, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, id string) bool {
	ok, err := d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.consumer, id), "1", d.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("event_id", id).Msg("cache: dedup check failed")
		return true
	}
	return ok
}

// MemoryDeduper keeps the most recent ids in process memory, evicting the
// oldest once full.
type MemoryDeduper struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	next  int
}

func NewMemoryDeduper(size int) *MemoryDeduper {
	if size <= 0 {
		size = 10000
	}
	return &MemoryDeduper{seen: make(map[string]struct{}, size), order: make([]string, size)}
}

func (d *MemoryDeduper) FirstSeen(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	if old := d.order[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.order[d.next] = id
	d.next = (d.next + 1) % len(d.order)
	d.seen[id] = struct{}{}
	return true
}
