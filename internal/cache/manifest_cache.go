package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresuchdata/paperview/backend-go/internal/config"
	"github.com/andresuchdata/paperview/backend-go/internal/manifest"
	"github.com/redis/go-redis/v9"
)

const (
	manifestKeyPrefix     = "manifest:object"
	manifestScanBatchSize = 100
)

// ManifestCache keeps parsed manifests around so a re-ingested object
// does not force consumers to hit the catalog.
type ManifestCache interface {
	Get(ctx context.Context, bucket, key string) (*manifest.Record, bool, error)
	Set(ctx context.Context, bucket, key string, record *manifest.Record) error
	Invalidate(ctx context.Context, bucket, key string) error
	InvalidateBucket(ctx context.Context, bucket string) error
}

type redisManifestCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopManifestCache struct{}

func NewManifestCache(cfg config.CacheConfig) (ManifestCache, error) {
	if !cfg.Enabled {
		return &noopManifestCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisManifestCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func NewNoopManifestCache() ManifestCache {
	return &noopManifestCache{}
}

func (c *redisManifestCache) Get(ctx context.Context, bucket, key string) (*manifest.Record, bool, error) {
	payload, err := c.client.Get(ctx, buildManifestKey(bucket, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var record manifest.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, false, fmt.Errorf("decode manifest cache: %w", err)
	}

	return &record, true, nil
}

func (c *redisManifestCache) Set(ctx context.Context, bucket, key string, record *manifest.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode manifest cache: %w", err)
	}

	if err := c.client.Set(ctx, buildManifestKey(bucket, key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisManifestCache) Invalidate(ctx context.Context, bucket, key string) error {
	return c.client.Del(ctx, buildManifestKey(bucket, key)).Err()
}

func (c *redisManifestCache) InvalidateBucket(ctx context.Context, bucket string) error {
	return deleteKeysWithPrefix(ctx, c.client, bucketKeyPrefix(bucket), manifestScanBatchSize)
}

func (n *noopManifestCache) Get(ctx context.Context, bucket, key string) (*manifest.Record, bool, error) {
	return nil, false, nil
}

func (n *noopManifestCache) Set(ctx context.Context, bucket, key string, record *manifest.Record) error {
	return nil
}

func (n *noopManifestCache) Invalidate(ctx context.Context, bucket, key string) error {
	return nil
}

func (n *noopManifestCache) InvalidateBucket(ctx context.Context, bucket string) error {
	return nil
}

// buildManifestKey hashes the object key: bucket keys can be long and
// contain characters that make poor redis key fragments.
func buildManifestKey(bucket, key string) string {
	sum := sha1.Sum([]byte(key))
	return bucketKeyPrefix(bucket) + hex.EncodeToString(sum[:])
}

func bucketKeyPrefix(bucket string) string {
	return fmt.Sprintf("%s:%s:", manifestKeyPrefix, bucket)
}
