// Package cache holds short-lived Redis views of order state.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// KeyOrderStatus is order_status:{order_id} -> OrderStatus JSON.
const KeyOrderStatus = "order_status:%s"

// OrderStatus is the customer-facing status snapshot.
type OrderStatus struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	TableNumber   string    `json:"table_number,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TotalAmount   string    `json:"total_amount"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusCache reads and writes order status snapshots. Implementations
// never fail the caller; a cache error is a miss.
type StatusCache interface {
	Get(ctx context.Context, orderID uuid.UUID) (OrderStatus, bool)
	Set(ctx context.Context, s OrderStatus)
	Invalidate(ctx context.Context, orderID uuid.UUID)
}

// NewClient opens a Redis client and pings it.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisStatusCache is a StatusCache backed by Redis string keys with a TTL.
type RedisStatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStatusCache(rdb redis.Cmdable, ttl time.Duration) *RedisStatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisStatusCache{rdb: rdb, ttl: ttl}
}

func (c *RedisStatusCache) Get(ctx context.Context, orderID uuid.UUID) (OrderStatus, bool) {
	raw, err := c.rdb.Get(ctx, key(orderID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("order_id", orderID.String()).Msg("cache: get failed")
		}
		return OrderStatus{}, false
	}
	var s OrderStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return OrderStatus{}, false
	}
	return s, true
}

func (c *RedisStatusCache) Set(ctx context.Context, s OrderStatus) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(s.OrderID), raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("order_id", s.OrderID.String()).Msg("cache: set failed")
	}
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, orderID uuid.UUID) {
	if err := c.rdb.Del(ctx, key(orderID)).Err(); err != nil {
		log.Warn().Err(err).Str("order_id", orderID.String()).Msg("cache: invalidate failed")
	}
}

func key(orderID uuid.UUID) string {
	return fmt.Sprintf(KeyOrderStatus, orderID)
}

// NopStatusCache is used when no Redis address is configured.
type NopStatusCache struct{}

func (NopStatusCache) Get(context.Context, uuid.UUID) (OrderStatus, bool) { return OrderStatus{}, false }
func (NopStatusCache) Set(context.Context, OrderStatus)                   {}
func (NopStatusCache) Invalidate(context.Context, uuid.UUID)              {}
