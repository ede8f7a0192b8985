package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"mts/internal/config"
	"mts/internal/errors"
	"mts/internal/validation"
)

// TimestampLayout is the ISO-8601 form written to timestamp records.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Opener creates the backend on first use.
type Opener func(ctx context.Context) (Backend, error)

// Option configures a Cache
type Option func(*Cache)

// WithBackendOpener replaces the default SQLite opener.
func WithBackendOpener(open Opener) Option {
	return func(c *Cache) { c.open = open }
}

// WithBackend uses an already opened backend.
func WithBackend(b Backend) Option {
	return WithBackendOpener(func(context.Context) (Backend, error) { return b, nil })
}

func WithLogger(l log.Interface) Option {
	return func(c *Cache) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithTimeout bounds every operation. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// WithAtomicWrites controls whether Set writes value and timestamp in one
// transaction (the default) or as two independent writes.
func WithAtomicWrites(enabled bool) Option {
	return func(c *Cache) { c.atomic = enabled }
}

// Cache is a best-effort keyed result cache. Get, Set and GetTimestamp never
// report storage faults; they log them and behave as a miss or a no-op.
type Cache struct {
	open    Opener
	logger  log.Interface
	now     func() time.Time
	timeout time.Duration
	atomic  bool

	mu      sync.Mutex
	backend Backend
	closed  bool

	warnedUnavailable atomic.Bool
}

// New creates a cache. The backend is opened lazily on first use.
func New(opts ...Option) *Cache {
	c := &Cache{
		open:   SQLiteOpener(""),
		logger: log.Log,
		now:    time.Now,
		atomic: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SQLiteOpener opens the SQLite backend in dir, or in the default cache
// directory when dir is empty.
func SQLiteOpener(dir string) Opener {
	return func(ctx context.Context) (Backend, error) {
		if dir == "" {
			d, err := config.DefaultCacheDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get cache directory: %w", err)
			}
			dir = d
		}
		return OpenSQLite(ctx, SQLiteOptions{Dir: dir})
	}
}

// TimestampKey returns the key of the companion timestamp record.
func TimestampKey(key string) string {
	return key + config.TimestampSuffix
}

// Open initializes the backend if needed. Concurrent callers share one
// backend; a failed open is retried on the next call.
func (c *Cache) Open(ctx context.Context) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		return c.backend, nil
	}
	if c.closed {
		return nil, errors.WrapStorageError(fmt.Errorf("cache is closed"), errors.ErrorTypeStorageUnavailable, "open", "")
	}

	b, err := c.open(ctx)
	if err != nil {
		return nil, errors.WrapStorageError(err, errors.ErrorTypeStorageUnavailable, "open", "")
	}
	c.backend = b
	return b, nil
}

// Close releases the backend. Further operations degrade to misses.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	return err
}

// Get returns the cached value for key. A missing key, an invalid key and any
// storage fault all report a miss.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if err := validation.ValidateKey(key); err != nil {
		c.logger.WithField("key", key).WithError(err).Debug("cache get skipped")
		return nil, false
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	b, ok := c.usable(ctx)
	if !ok {
		return nil, false
	}

	data, found, err := b.Get(ctx, key)
	if err != nil {
		c.warn(errors.WrapStorageError(err, errors.ErrorTypeStorageRead, "get", key))
		return nil, false
	}
	if !found {
		return nil, false
	}
	return json.RawMessage(data), true
}

// Set stores value under key and records the write time. A nil value is
// ignored so absent results are never cached.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	if isNil(value) {
		return
	}
	if err := validation.ValidateKey(key); err != nil {
		c.warn(errors.WrapValidationError(err, key))
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.warn(errors.WrapStorageError(err, errors.ErrorTypeStorageWrite, "marshal", key))
		return
	}
	stamp, _ := json.Marshal(c.now().UTC().Format(TimestampLayout))

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	b, ok := c.usable(ctx)
	if !ok {
		return
	}

	valueRec := Record{Key: key, Value: data}
	stampRec := Record{Key: TimestampKey(key), Value: stamp}

	if c.atomic {
		if err := b.Put(ctx, valueRec, stampRec); err != nil {
			c.warn(errors.WrapStorageError(err, errors.ErrorTypeStorageWrite, "set", key))
		}
		return
	}

	// Two independent writes: either may land without the other.
	if err := b.Put(ctx, valueRec); err != nil {
		c.warn(errors.WrapStorageError(err, errors.ErrorTypeStorageWrite, "set", key))
	}
	if err := b.Put(ctx, stampRec); err != nil {
		c.warn(errors.WrapStorageError(err, errors.ErrorTypeStorageWrite, "set_timestamp", key))
	}
}

// GetTimestamp returns the last write time recorded for key.
func (c *Cache) GetTimestamp(ctx context.Context, key string) (time.Time, bool) {
	if err := validation.ValidateKey(key); err != nil {
		return time.Time{}, false
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	b, ok := c.usable(ctx)
	if !ok {
		return time.Time{}, false
	}

	data, found, err := b.Get(ctx, TimestampKey(key))
	if err != nil {
		c.warn(errors.WrapStorageError(err, errors.ErrorTypeStorageRead, "get_timestamp", key))
		return time.Time{}, false
	}
	if !found {
		return time.Time{}, false
	}

	ts, err := parseTimestamp(data)
	if err != nil {
		c.warn(errors.WrapStorageError(err, errors.ErrorTypeStorageRead, "get_timestamp", key))
		return time.Time{}, false
	}
	return ts, true
}

// Delete removes the value and timestamp for key
func (c *Cache) Delete(ctx context.Context, key string) error {
	b, err := c.Open(ctx)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx, key, TimestampKey(key)); err != nil {
		return errors.WrapStorageError(err, errors.ErrorTypeStorageWrite, "delete", key)
	}
	return nil
}

// Clear removes all cache entries
func (c *Cache) Clear(ctx context.Context) error {
	b, err := c.Open(ctx)
	if err != nil {
		return err
	}
	if err := b.Clear(ctx); err != nil {
		return errors.WrapStorageError(err, errors.ErrorTypeStorageWrite, "clear", "")
	}
	return nil
}

// Entries lists every logical key with its size and timestamp, sorted by key.
func (c *Cache) Entries(ctx context.Context) ([]EntryInfo, error) {
	b, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}

	records, err := b.List(ctx)
	if err != nil {
		return nil, errors.WrapStorageError(err, errors.ErrorTypeStorageRead, "list", "")
	}

	byKey := make(map[string]*EntryInfo)
	entry := func(key string) *EntryInfo {
		e, ok := byKey[key]
		if !ok {
			e = &EntryInfo{Key: key}
			byKey[key] = e
		}
		return e
	}

	for _, r := range records {
		if base, ok := strings.CutSuffix(r.Key, config.TimestampSuffix); ok {
			ts, err := parseTimestamp(r.Value)
			if err != nil {
				c.logger.WithField("key", base).WithError(err).Debug("unreadable timestamp")
				continue
			}
			entry(base).Timestamp = ts
			continue
		}
		e := entry(r.Key)
		e.HasValue = true
		e.Size = int64(len(r.Value))
	}

	entries := make([]EntryInfo, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Stats returns cache statistics
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return nil, err
	}

	var stats Stats
	for _, e := range entries {
		switch {
		case e.HasValue && !e.Timestamp.IsZero():
			stats.Entries++
			stats.Timestamped++
		case e.HasValue:
			stats.Entries++
		default:
			stats.OrphanTimestamps++
		}
	}

	b, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}
	if stats.SizeBytes, err = b.Size(ctx); err != nil {
		return nil, errors.WrapStorageError(err, errors.ErrorTypeStorageRead, "size", "")
	}
	return &stats, nil
}

// Cleanup removes entries written more than olderThan ago, plus timestamps
// whose value is gone. Values without a timestamp are kept. It returns the
// number of logical entries removed.
func (c *Cache) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-olderThan)
	var keys []string
	removed := 0
	for _, e := range entries {
		stale := !e.Timestamp.IsZero() && e.Timestamp.Before(cutoff)
		if stale || !e.HasValue {
			keys = append(keys, e.Key, TimestampKey(e.Key))
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	b, err := c.Open(ctx)
	if err != nil {
		return 0, err
	}
	if err := b.Delete(ctx, keys...); err != nil {
		return 0, errors.WrapStorageError(err, errors.ErrorTypeStorageWrite, "cleanup", "")
	}
	if cp, ok := b.(compactor); ok {
		if err := cp.Compact(ctx); err != nil {
			c.logger.WithError(err).Warn("cache compaction failed")
		}
	}
	return removed, nil
}

// usable opens the backend for a best-effort operation.
func (c *Cache) usable(ctx context.Context) (Backend, bool) {
	b, err := c.Open(ctx)
	if err == nil {
		return b, true
	}
	appErr, isApp := err.(*errors.AppError)
	if isApp && c.warnedUnavailable.CompareAndSwap(false, true) {
		c.warn(appErr)
	} else {
		c.logger.WithError(err).Debug("cache unavailable")
	}
	return nil, false
}

func (c *Cache) warn(err *errors.AppError) {
	fields := log.Fields{"type": err.Type.String()}
	for k, v := range err.Context {
		fields[k] = v
	}
	entry := c.logger.WithFields(fields)
	if cause := err.Unwrap(); cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Warn(err.Message)
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

func parseTimestamp(data []byte) (time.Time, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return time.Time{}, fmt.Errorf("timestamp is not a JSON string: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not ISO-8601: %w", s, err)
	}
	return ts, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// EntryInfo describes one logical key
type EntryInfo struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
	HasValue  bool      `json:"has_value"`
}

// ItemKey identifies the entry in a state.Collection.
func (e EntryInfo) ItemKey() string { return e.Key }

// Age returns how long ago the entry was written, or -1 when unknown.
func (e EntryInfo) Age(now time.Time) time.Duration {
	if e.Timestamp.IsZero() {
		return -1
	}
	return now.Sub(e.Timestamp)
}

// Stats represents cache statistics
type Stats struct {
	Entries          int64 `json:"entries"`
	Timestamped      int64 `json:"timestamped"`
	OrphanTimestamps int64 `json:"orphan_timestamps"`
	SizeBytes        int64 `json:"size_bytes"`
}
