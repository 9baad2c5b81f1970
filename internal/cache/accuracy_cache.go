package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresuchdata/restockcast/internal/config"
	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	accuracyKeyPrefix     = "forecast:accuracy"
	accuracyScanBatchSize = 100
)

// AccuracyCache caches the MAPE accuracy reports, which walk large snapshot
// windows and change at most once per reconciliation run.
type AccuracyCache interface {
	GetMultiHorizon(ctx context.Context, daysBack int) (domain.HorizonAccuracy, bool, error)
	SetMultiHorizon(ctx context.Context, daysBack int, acc domain.HorizonAccuracy) error
	InvalidateAll(ctx context.Context) error
}

type redisAccuracyCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopAccuracyCache struct{}

func NewAccuracyCache(cfg config.CacheConfig) (AccuracyCache, error) {
	if !cfg.Enabled {
		return &noopAccuracyCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisAccuracyCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func NewNoopAccuracyCache() AccuracyCache {
	return &noopAccuracyCache{}
}

func (c *redisAccuracyCache) GetMultiHorizon(ctx context.Context, daysBack int) (domain.HorizonAccuracy, bool, error) {
	key := buildAccuracyKey(daysBack)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return domain.HorizonAccuracy{}, false, nil
	}
	if err != nil {
		return domain.HorizonAccuracy{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var acc domain.HorizonAccuracy
	if err := json.Unmarshal(payload, &acc); err != nil {
		return domain.HorizonAccuracy{}, false, fmt.Errorf("decode accuracy cache: %w", err)
	}

	return acc, true, nil
}

func (c *redisAccuracyCache) SetMultiHorizon(ctx context.Context, daysBack int, acc domain.HorizonAccuracy) error {
	key := buildAccuracyKey(daysBack)
	payload, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode accuracy cache: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisAccuracyCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, accuracyKeyPrefix, accuracyScanBatchSize)
}

func (n *noopAccuracyCache) GetMultiHorizon(ctx context.Context, daysBack int) (domain.HorizonAccuracy, bool, error) {
	return domain.HorizonAccuracy{}, false, nil
}

func (n *noopAccuracyCache) SetMultiHorizon(ctx context.Context, daysBack int, acc domain.HorizonAccuracy) error {
	return nil
}

func (n *noopAccuracyCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildAccuracyKey(daysBack int) string {
	return fmt.Sprintf("%s:%d", accuracyKeyPrefix, daysBack)
}
