package cache

import (
	"context"
	"time"
)

// Cache holds short-lived keyed guards shared by API handlers, such as the
// per-account exchange guard. The memory implementation serves a single
// process; the Redis one spans every replica pointing at the same server.
type Cache interface {
	// SetNX stores a value only when the key is absent or expired and
	// reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Release deletes the key only while it still holds value.
	Release(ctx context.Context, key string, value []byte) error

	Close() error
}
