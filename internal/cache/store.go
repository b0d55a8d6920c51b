package cache

import (
	"context"
	"time"
)

// Store is a shared TTL cache used to keep resolved interaction contexts hot.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
