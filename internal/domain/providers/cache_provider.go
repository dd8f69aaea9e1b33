package providers

import (
	"context"
	"time"
)

// CacheProvider is a shared byte cache that outlives one process.
type CacheProvider interface {
	// Get retrieves a value. found is false on a miss, which is not an error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores a value that expires after ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}
