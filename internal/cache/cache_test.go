package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mts/internal/errors"
)

type searchResponse struct {
	Items []int `json:"items"`
	Total int   `json:"total"`
}

// faultyBackend fails reads, or writes touching selected keys.
type faultyBackend struct {
	*MemoryBackend
	failGet  bool
	failPuts map[string]bool
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{MemoryBackend: NewMemoryBackend(), failPuts: make(map[string]bool)}
}

func (f *faultyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, fmt.Errorf("disk I/O error")
	}
	return f.MemoryBackend.Get(ctx, key)
}

func (f *faultyBackend) Put(ctx context.Context, records ...Record) error {
	for _, r := range records {
		if f.failPuts[r.Key] {
			return fmt.Errorf("quota exceeded writing %s", r.Key)
		}
	}
	return f.MemoryBackend.Put(ctx, records...)
}

func testLogger() (*log.Logger, *memory.Handler) {
	h := memory.New()
	return &log.Logger{Handler: h, Level: log.DebugLevel}, h
}

func warnings(h *memory.Handler) []*log.Entry {
	var out []*log.Entry
	for _, e := range h.Entries {
		if e.Level == log.WarnLevel {
			out = append(out, e)
		}
	}
	return out
}

type backendFactory struct {
	name string
	new  func(t *testing.T) Opener
}

func backends() []backendFactory {
	return []backendFactory{
		{
			name: "memory",
			new: func(t *testing.T) Opener {
				b := NewMemoryBackend()
				return func(context.Context) (Backend, error) { return b, nil }
			},
		},
		{
			name: "sqlite",
			new: func(t *testing.T) Opener {
				return SQLiteOpener(t.TempDir())
			},
		},
	}
}

func newCache(t *testing.T, open Opener, opts ...Option) *Cache {
	t.Helper()
	logger, _ := testLogger()
	c := New(append([]Option{WithBackendOpener(open), WithLogger(logger)}, opts...)...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheProperties(t *testing.T) {
	ctx := context.Background()

	for _, bf := range backends() {
		t.Run(bf.name, func(t *testing.T) {
			t.Run("write then read", func(t *testing.T) {
				c := newCache(t, bf.new(t))
				c.Set(ctx, "k", map[string]any{"a": "b", "n": 1.5})

				raw, ok := c.Get(ctx, "k")
				require.True(t, ok)
				assert.JSONEq(t, `{"a":"b","n":1.5}`, string(raw))
			})

			t.Run("miss on unknown key", func(t *testing.T) {
				c := newCache(t, bf.new(t))
				raw, ok := c.Get(ctx, "never-written")
				assert.False(t, ok)
				assert.Nil(t, raw)

				_, ok = c.GetTimestamp(ctx, "never-written")
				assert.False(t, ok)
			})

			t.Run("nil value is a no-op", func(t *testing.T) {
				c := newCache(t, bf.new(t))
				c.Set(ctx, "k", []int{1})
				c.Set(ctx, "k", nil)
				var nilResp *searchResponse
				c.Set(ctx, "k", nilResp)

				raw, ok := c.Get(ctx, "k")
				require.True(t, ok)
				assert.JSONEq(t, `[1]`, string(raw))
			})

			t.Run("timestamp freshness", func(t *testing.T) {
				c := newCache(t, bf.new(t))
				before := time.Now().Truncate(time.Millisecond)
				c.Set(ctx, "k", "v")
				after := time.Now()

				ts, ok := c.GetTimestamp(ctx, "k")
				require.True(t, ok)
				assert.False(t, ts.Before(before), "timestamp %s before %s", ts, before)
				assert.False(t, ts.After(after), "timestamp %s after %s", ts, after)
			})

			t.Run("overwrite", func(t *testing.T) {
				c := newCache(t, bf.new(t))
				c.Set(ctx, "k", "v1")
				c.Set(ctx, "k", "v2")

				raw, ok := c.Get(ctx, "k")
				require.True(t, ok)
				assert.JSONEq(t, `"v2"`, string(raw))

				entries, err := c.Entries(ctx)
				require.NoError(t, err)
				assert.Len(t, entries, 1)
			})

			t.Run("independent keys", func(t *testing.T) {
				c := newCache(t, bf.new(t))
				c.Set(ctx, "k2", "untouched")
				c.Set(ctx, "k1", "v1")

				raw, ok := c.Get(ctx, "k2")
				require.True(t, ok)
				assert.JSONEq(t, `"untouched"`, string(raw))
			})

			t.Run("end to end search scenario", func(t *testing.T) {
				c := newCache(t, bf.new(t))
				c.Set(ctx, "search:foo", searchResponse{Items: []int{1, 2, 3}, Total: 3})

				raw, ok := c.Get(ctx, "search:foo")
				require.True(t, ok)
				assert.JSONEq(t, `{"items":[1,2,3],"total":3}`, string(raw))

				ts, ok := c.GetTimestamp(ctx, "search:foo")
				require.True(t, ok)
				_, err := time.Parse(time.RFC3339, ts.Format(time.RFC3339))
				assert.NoError(t, err)

				_, ok = c.Get(ctx, "search:bar")
				assert.False(t, ok)
			})
		})
	}
}

func TestTimestampRecordFormat(t *testing.T) {
	b := NewMemoryBackend()
	fixed := time.Date(2026, 10, 19, 12, 34, 56, 789_000_000, time.FixedZone("CEST", 2*60*60))
	c := newCache(t, func(context.Context) (Backend, error) { return b, nil }, WithClock(func() time.Time { return fixed }))

	c.Set(context.Background(), "search:foo", 1)

	data, ok, err := b.Get(context.Background(), "search:foo_timestamp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"2026-10-19T10:34:56.789Z"`, string(data))
}

func TestSetRejectsReservedSuffix(t *testing.T) {
	logger, h := testLogger()
	b := NewMemoryBackend()
	c := New(WithBackend(b), WithLogger(logger))

	c.Set(context.Background(), "search:foo_timestamp", "v")

	records, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Len(t, warnings(h), 1)
}

func TestAtomicWriteFaultLeavesBothRecords(t *testing.T) {
	ctx := context.Background()
	fb := newFaultyBackend()
	logger, h := testLogger()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithBackend(fb), WithLogger(logger), WithClock(func() time.Time { return now }))

	c.Set(ctx, "k", "old")
	fb.failPuts[TimestampKey("k")] = true
	now = now.Add(time.Hour)
	c.Set(ctx, "k", "new")

	raw, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `"old"`, string(raw))

	ts, ok := c.GetTimestamp(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ts)
	assert.Len(t, warnings(h), 1)
}

func TestNonAtomicWriteFaultSplitsRecords(t *testing.T) {
	ctx := context.Background()
	fb := newFaultyBackend()
	logger, h := testLogger()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithBackend(fb), WithLogger(logger), WithAtomicWrites(false), WithClock(func() time.Time { return now }))

	c.Set(ctx, "k", "old")
	fb.failPuts[TimestampKey("k")] = true
	now = now.Add(time.Hour)
	c.Set(ctx, "k", "new")

	raw, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `"new"`, string(raw))

	ts, ok := c.GetTimestamp(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ts)

	w := warnings(h)
	require.Len(t, w, 1)
	assert.Equal(t, "set_timestamp", w[0].Fields.Get("operation"))
}

func TestTimestampWithoutValueIsMiss(t *testing.T) {
	ctx := context.Background()
	fb := newFaultyBackend()
	c := New(WithBackend(fb), WithAtomicWrites(false), WithLogger(log.Log))
	fb.failPuts["k"] = true

	c.Set(ctx, "k", "v")

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	_, ok = c.GetTimestamp(ctx, "k")
	assert.True(t, ok)
}

func TestReadFaultIsLoggedMiss(t *testing.T) {
	ctx := context.Background()
	fb := newFaultyBackend()
	logger, h := testLogger()
	c := New(WithBackend(fb), WithLogger(logger))

	c.Set(ctx, "k", "v")
	fb.failGet = true

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	_, ok = c.GetTimestamp(ctx, "k")
	assert.False(t, ok)

	w := warnings(h)
	require.Len(t, w, 2)
	assert.Equal(t, "storage_read", w[0].Fields.Get("type"))
	assert.Equal(t, "k", w[0].Fields.Get("key"))
}

func TestUnavailableStorageDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	logger, h := testLogger()
	calls := 0
	c := New(WithLogger(logger), WithBackendOpener(func(context.Context) (Backend, error) {
		calls++
		return nil, fmt.Errorf("private browsing")
	}))

	_, err := c.Open(ctx)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStorageUnavailable))

	c.Set(ctx, "k", "v")
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	_, ok = c.GetTimestamp(ctx, "k")
	assert.False(t, ok)

	assert.Equal(t, 4, calls, "failed opens are retried")
	assert.Len(t, warnings(h), 1, "unavailability is warned once")
}

func TestSQLiteUnavailableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	c := New(WithBackendOpener(SQLiteOpener(filepath.Join(blocker, "sub"))), WithLogger(log.Log))
	_, err := c.Open(context.Background())
	assert.True(t, stderrors.Is(err, errors.ErrStorageUnavailable))
}

func TestOpenIsIdempotentAcrossGoroutines(t *testing.T) {
	var opens atomic.Int32
	c := New(WithBackendOpener(func(context.Context) (Backend, error) {
		opens.Add(1)
		time.Sleep(5 * time.Millisecond)
		return NewMemoryBackend(), nil
	}))

	var wg sync.WaitGroup
	got := make([]Backend, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := c.Open(context.Background())
			assert.NoError(t, err)
			got[i] = b
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	for _, b := range got {
		assert.Same(t, got[0], b)
	}
}

func TestClosedCacheMisses(t *testing.T) {
	ctx := context.Background()
	c := New(WithBackend(NewMemoryBackend()), WithLogger(log.Log))
	c.Set(ctx, "k", "v")
	require.NoError(t, c.Close())

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, c.Clear(ctx))
}

// blockingBackend never answers until the context ends.
type blockingBackend struct{ *MemoryBackend }

func (b blockingBackend) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func TestTimeoutBoundsOperations(t *testing.T) {
	c := New(WithBackend(blockingBackend{NewMemoryBackend()}), WithTimeout(10*time.Millisecond), WithLogger(log.Log))

	start := time.Now()
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConcurrentSetsOnSQLite(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, SQLiteOpener(t.TempDir()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(ctx, fmt.Sprintf("search:q%d", i), searchResponse{Items: []int{i}, Total: 1})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		raw, ok := c.Get(ctx, fmt.Sprintf("search:q%d", i))
		require.True(t, ok)
		var resp searchResponse
		require.NoError(t, json.Unmarshal(raw, &resp))
		assert.Equal(t, []int{i}, resp.Items)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := New(WithBackendOpener(SQLiteOpener(dir)), WithLogger(log.Log))
	first.Set(ctx, "search:foo", searchResponse{Items: []int{1}, Total: 1})
	require.NoError(t, first.Close())

	second := newCache(t, SQLiteOpener(dir))
	raw, ok := second.Get(ctx, "search:foo")
	require.True(t, ok)
	assert.JSONEq(t, `{"items":[1],"total":1}`, string(raw))
}

func TestSQLiteSchemaDowngradeRefused(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenSQLite(ctx, SQLiteOptions{Dir: dir})
	require.NoError(t, err)
	_, err = b.db.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	c := New(WithBackendOpener(SQLiteOpener(dir)), WithLogger(log.Log))
	_, err = c.Open(ctx)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStorageUnavailable))
	assert.True(t, stderrors.Is(err, ErrSchemaDowngrade))
}

func TestSQLiteSchemaUpgrade(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenSQLite(ctx, SQLiteOptions{Dir: dir, SchemaVersion: 1})
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, Record{Key: "k", Value: []byte(`1`)}))
	require.NoError(t, b.Close())

	b, err = OpenSQLite(ctx, SQLiteOptions{Dir: dir, SchemaVersion: 2})
	require.NoError(t, err)
	defer b.Close()

	var version int
	require.NoError(t, b.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 2, version)

	data, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(data))
}

func TestSQLiteRejectsBadStoreName(t *testing.T) {
	_, err := OpenSQLite(context.Background(), SQLiteOptions{Dir: t.TempDir(), Store: "x; DROP TABLE y"})
	assert.Error(t, err)
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()

	for _, bf := range backends() {
		t.Run(bf.name, func(t *testing.T) {
			now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
			c := newCache(t, bf.new(t), WithClock(func() time.Time { return now }))

			c.Set(ctx, "search:old", "o")
			now = now.Add(2 * time.Hour)
			c.Set(ctx, "search:new", "n")
			c.Set(ctx, "search:gone", "g")

			b, err := c.Open(ctx)
			require.NoError(t, err)
			require.NoError(t, b.Delete(ctx, "search:gone"))

			stats, err := c.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), stats.Entries)
			assert.Equal(t, int64(2), stats.Timestamped)
			assert.Equal(t, int64(1), stats.OrphanTimestamps)
			assert.Positive(t, stats.SizeBytes)

			removed, err := c.Cleanup(ctx, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			entries, err := c.Entries(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "search:new", entries[0].Key)
			assert.True(t, entries[0].HasValue)
			assert.Equal(t, int64(3), entries[0].Size)
			assert.Equal(t, time.Duration(0), entries[0].Age(now))

			require.NoError(t, c.Delete(ctx, "search:new"))
			_, ok := c.GetTimestamp(ctx, "search:new")
			assert.False(t, ok)

			c.Set(ctx, "search:x", 1)
			require.NoError(t, c.Clear(ctx))
			entries, err = c.Entries(ctx)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestTyped(t *testing.T) {
	ctx := context.Background()
	logger, h := testLogger()
	b := NewMemoryBackend()
	c := New(WithBackend(b), WithLogger(logger))
	typed := NewTyped[*searchResponse](c)

	typed.Set(ctx, "search:foo", &searchResponse{Items: []int{1, 2, 3}, Total: 3})
	typed.Set(ctx, "search:foo", nil)

	got, ok := typed.Get(ctx, "search:foo")
	require.True(t, ok)
	assert.Equal(t, &searchResponse{Items: []int{1, 2, 3}, Total: 3}, got)

	_, ok = typed.GetTimestamp(ctx, "search:foo")
	assert.True(t, ok)

	require.NoError(t, b.Put(ctx, Record{Key: "search:bad", Value: []byte(`"not an object"`)}))
	_, ok = typed.Get(ctx, "search:bad")
	assert.False(t, ok)
	assert.Len(t, warnings(h), 1)
}
