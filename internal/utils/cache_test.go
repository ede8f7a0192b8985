package utils

import (
	"context"
	"path/filepath"
	"testing"

	"mts/internal/config"
)

func TestNewCacheNoPersist(t *testing.T) {
	c := NewCache(config.Default(), true)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", "v")
	if got, ok := c.Get(ctx, "k"); !ok || string(got) != `"v"` {
		t.Errorf("Get(k) = %s, %v", got, ok)
	}
}

func TestNewCacheUsesConfiguredDir(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Dir = t.TempDir()

	c := NewCache(cfg, false)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", 1)
	if _, ok := c.GetTimestamp(ctx, "k"); !ok {
		t.Fatal("expected a timestamp after Set")
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.Cache.Dir, config.DatabaseName+".db*"))
	if len(matches) == 0 {
		t.Errorf("expected a database file in %s", cfg.Cache.Dir)
	}
}

func TestNewCacheWithoutResolvableDir(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv(config.EnvCacheDir, "")

	c := NewCache(config.Default(), false)
	if c == nil {
		t.Fatal("NewCache should return a usable cache")
	}
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", 1)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected a miss when no cache directory exists")
	}
	if _, err := c.Open(ctx); err == nil {
		t.Error("expected Open to report the unavailable directory")
	}
}
