package out

import (
	"context"
	"time"
)

// Cache defines the outbound port for a TTL cache. Values are JSON encoded by
// the implementation; Get reports false on a miss or an expired entry.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
