package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/domain/model"
)

const statusKeyPrefix = "job_status:"

// StatusCache keeps a short-TTL copy of recently fetched job statuses in
// front of the store, absorbing repeated status reads for the same job
// within one window. Like the rate limiter it fails open: a Redis outage
// degrades to cache misses, never to errors.
type StatusCache struct {
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewStatusCache(client RedisClient, ttl time.Duration, log *zerolog.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatusCache{client: client, ttl: ttl, log: log}
}

func statusKey(jobID string) string { return statusKeyPrefix + jobID }

// Get returns the cached status for the job, reporting whether one was
// present.
func (c *StatusCache) Get(ctx context.Context, jobID string) (model.JobStatus, bool) {
	v, err := c.client.Get(ctx, statusKey(jobID))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Str("job_id", jobID).Err(err).Msg("status cache read failed")
		}
		return "", false
	}
	if v == "" {
		return "", false
	}
	return model.NormalizeStatus(v), true
}

// Set stores the status under the cache TTL.
func (c *StatusCache) Set(ctx context.Context, jobID string, status model.JobStatus) {
	if err := c.client.Set(ctx, statusKey(jobID), string(status), c.ttl); err != nil {
		c.log.Warn().Str("job_id", jobID).Err(err).Msg("status cache write failed")
	}
}

// Invalidate drops the cached status after an out-of-band store write.
func (c *StatusCache) Invalidate(ctx context.Context, jobID string) {
	if err := c.client.Del(ctx, statusKey(jobID)); err != nil {
		c.log.Warn().Str("job_id", jobID).Err(err).Msg("status cache invalidation failed")
	}
}
