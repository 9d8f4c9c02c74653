package travel

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kribdispatch/internal/model"
)

// Cached wraps an Estimator with a Redis get-through cache. Cache
// errors are ignored; a cold or unreachable cache only costs a
// recomputation. Keys quantize coordinates to ~11m so nearby lookups
// share entries.
type Cached struct {
	Inner Estimator
	RDB   *redis.Client
	TTL   time.Duration
}

func NewCached(inner Estimator, rdb *redis.Client) *Cached {
	return &Cached{Inner: inner, RDB: rdb, TTL: 6 * time.Hour}
}

func (c *Cached) Estimate(ctx context.Context, from, to model.GeoPoint) time.Duration {
	if c.RDB == nil {
		return c.Inner.Estimate(ctx, from, to)
	}
	key := cacheKey(from, to)
	if v, err := c.RDB.Get(ctx, key).Int64(); err == nil && v >= 0 {
		return time.Duration(v) * time.Second
	}
	d := c.Inner.Estimate(ctx, from, to)
	_ = c.RDB.Set(ctx, key, int64(d/time.Second), c.TTL).Err()
	return d
}

func cacheKey(from, to model.GeoPoint) string {
	return fmt.Sprintf("travel:%.4f,%.4f>%.4f,%.4f", from.Lat, from.Lng, to.Lat, to.Lng)
}
