package generation

import (
	"context"
	"time"

	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	"github.com/fedspending/data-broker/pkg/metrics"
)

// Cache decides whether a date-ranged generation can reuse the output of another job.
type Cache struct {
	requests store.FileRequest
	now      func() time.Time
}

func NewCache(requests store.FileRequest, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{requests: requests, now: now}
}

func (c *Cache) Resolve(ctx context.Context, key model.CacheKey, jobID int64) (*store.Resolution, error) {
	resolution, err := c.requests.Resolve(ctx, key, jobID, c.now())
	if err != nil {
		return nil, err
	}

	metrics.IncreaseCacheResolutionsMetric(string(key.FileType), resolution.Kind.String())
	return resolution, nil
}

// Today is the request date used by the cache.
func (c *Cache) Today() time.Time {
	return model.Day(c.now())
}
