package cache

import (
	"context"
	"time"
)

// Store is the shared backend for rate limiting counters.
type Store interface {
	// IncrementWithTTL bumps the counter for key and returns the new count and
	// the time left in its fixed window. The window starts on first use.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
