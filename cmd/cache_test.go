package cmd

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mts/internal/cache"
)

// execute runs the root command against a cache in dir and returns stdout
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MTS_CONFIG", filepath.Join(dir, "missing.yaml"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--cache-dir", dir, "--log-level", "error"}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCacheCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "cache", "set", "greeting", `{"hello":"world"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored greeting at ")

	_, err = execute(t, dir, "cache", "set", "plain", "not json")
	require.NoError(t, err)

	out, err = execute(t, dir, "cache", "get", "greeting")
	require.NoError(t, err)
	assert.Contains(t, out, `"hello": "world"`)

	out, err = execute(t, dir, "cache", "get", "plain")
	require.NoError(t, err)
	assert.Contains(t, out, `"not json"`)

	out, err = execute(t, dir, "cache", "timestamp", "greeting")
	require.NoError(t, err)
	assert.Contains(t, out, "Z (")

	out, err = execute(t, dir, "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "greeting")
	assert.Contains(t, out, "plain")
	assert.Contains(t, out, statusFresh)

	out, err = execute(t, dir, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:           2")

	_, err = execute(t, dir, "cache", "delete", "greeting")
	require.NoError(t, err)

	_, err = execute(t, dir, "cache", "get", "greeting")
	assert.Error(t, err)

	out, err = execute(t, dir, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 cache entries")

	out, err = execute(t, dir, "cache", "list")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Cache is empty"))
}

func TestCacheSetRejectsReservedSuffix(t *testing.T) {
	_, err := execute(t, t.TempDir(), "cache", "set", "foo_timestamp", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "_timestamp")
}

// flakyBackend fails every Put once broken is set
type flakyBackend struct {
	*cache.MemoryBackend
	broken atomic.Bool
}

func (b *flakyBackend) Put(ctx context.Context, records ...cache.Record) error {
	if b.broken.Load() {
		return fmt.Errorf("disk full")
	}
	return b.MemoryBackend.Put(ctx, records...)
}

func TestStoreValueDetectsFailedOverwrite(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return at }

	b := &flakyBackend{MemoryBackend: cache.NewMemoryBackend()}
	c := cache.New(
		cache.WithBackend(b),
		cache.WithClock(func() time.Time { return now() }),
		cache.WithLogger(&log.Logger{Handler: discard.New(), Level: log.DebugLevel}),
	)
	defer c.Close()

	ts, err := storeValue(ctx, c, "greeting", `{"hello":"world"}`, now)
	require.NoError(t, err)
	assert.True(t, ts.Equal(at))

	at = at.Add(time.Minute)
	b.broken.Store(true)

	_, err = storeValue(ctx, c, "greeting", `{"hello":"again"}`, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "was not stored")

	old, ok := c.GetTimestamp(ctx, "greeting")
	require.True(t, ok)
	assert.True(t, old.Before(at), "earlier record stays in place")
}

func TestStoreValueUnavailableCache(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("MTS_CACHE_DIR", "")

	c := cache.New(
		cache.WithBackendOpener(cache.SQLiteOpener("")),
		cache.WithLogger(&log.Logger{Handler: discard.New(), Level: log.DebugLevel}),
	)
	defer c.Close()

	_, err := storeValue(context.Background(), c, "k", "1", time.Now)
	assert.Error(t, err)
}
