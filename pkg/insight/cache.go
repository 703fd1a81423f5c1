package insight

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

const snapshotCacheKey = "insight:portfolio:latest"

// SnapshotCache mirrors the published portfolio snapshot into Redis so a
// restarted service can serve reads before its first refresh completes.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func (c *SnapshotCache) Store(ctx context.Context, summary *models.PortfolioSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotCacheKey, data, c.ttl).Err()
}

// Load returns the cached snapshot, or nil without error on a cache miss.
func (c *SnapshotCache) Load(ctx context.Context) (*models.PortfolioSummary, error) {
	data, err := c.client.Get(ctx, snapshotCacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var summary models.PortfolioSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
