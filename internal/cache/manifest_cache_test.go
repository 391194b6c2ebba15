package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/andresuchdata/paperview/backend-go/internal/config"
	"github.com/andresuchdata/paperview/backend-go/internal/manifest"
)

func TestBuildManifestKey(t *testing.T) {
	a := buildManifestKey("biorxiv-src-monthly", "Current_Content/July_2025/unit.meca")
	b := buildManifestKey("biorxiv-src-monthly", "Current_Content/July_2025/other.meca")

	if a == b {
		t.Error("distinct object keys share a cache key")
	}
	if !strings.HasPrefix(a, "manifest:object:biorxiv-src-monthly:") {
		t.Errorf("cache key %q missing bucket prefix", a)
	}
	if again := buildManifestKey("biorxiv-src-monthly", "Current_Content/July_2025/unit.meca"); again != a {
		t.Errorf("cache key not stable: %q vs %q", a, again)
	}
	if strings.ContainsAny(strings.TrimPrefix(a, "manifest:object:biorxiv-src-monthly:"), "/ ") {
		t.Errorf("hashed fragment leaks raw key characters: %q", a)
	}
}

func TestNoopManifestCache(t *testing.T) {
	c := NewNoopManifestCache()
	ctx := context.Background()

	title := "Example"
	if err := c.Set(ctx, "bucket", "key", &manifest.Record{Title: &title}); err != nil {
		t.Fatalf("noop set: %v", err)
	}
	record, ok, err := c.Get(ctx, "bucket", "key")
	if err != nil {
		t.Fatalf("noop get: %v", err)
	}
	if ok || record != nil {
		t.Error("noop cache should never report a hit")
	}
	if err := c.InvalidateBucket(ctx, "bucket"); err != nil {
		t.Fatalf("noop invalidate: %v", err)
	}
}

func TestNewManifestCacheDisabled(t *testing.T) {
	c, err := NewManifestCache(config.CacheConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewManifestCache: %v", err)
	}
	if _, ok := c.(*noopManifestCache); !ok {
		t.Errorf("disabled cache should be the noop implementation, got %T", c)
	}
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisURL: "redis://:secret@cache.internal:6380/2"})
	if err != nil {
		t.Fatalf("buildRedisOptions: %v", err)
	}
	if opts.Addr != "cache.internal:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Errorf("parsed options = %+v", opts)
	}

	opts, err = buildRedisOptions(config.CacheConfig{})
	if err != nil {
		t.Fatalf("buildRedisOptions: %v", err)
	}
	if opts.Addr != "127.0.0.1:6379" {
		t.Errorf("default addr = %s, want 127.0.0.1:6379", opts.Addr)
	}

	if _, err := buildRedisOptions(config.CacheConfig{RedisURL: "not a url"}); err == nil {
		t.Error("expected error for invalid redis url")
	}
}
