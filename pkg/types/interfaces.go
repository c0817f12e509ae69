package types

import (
	"context"
	"time"
)

// Tier is the contract shared by cache tiers. The memory tier satisfies
// it synchronously; the persistent tier may touch disk and therefore
// takes a context on every operation.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Stats() TierStats
	Close() error
}

// ValueProvider produces the value for a key during cache warmup.
type ValueProvider func(ctx context.Context, key string) ([]byte, error)

// EventSink consumes cache events. The statistics engine implements it;
// sinks observe, they never mutate cache state.
type EventSink interface {
	RecordEvent(event CacheEvent)
}
