package cache

import (
	"context"
	"encoding/json"
	"time"

	"mts/internal/errors"
)

// Typed stores values of one JSON-serializable type V.
type Typed[V any] struct {
	cache *Cache
}

// NewTyped wraps c for values of type V.
func NewTyped[V any](c *Cache) *Typed[V] {
	return &Typed[V]{cache: c}
}

// Get decodes the cached value. A value that no longer decodes as V is a miss.
func (t *Typed[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	raw, ok := t.cache.Get(ctx, key)
	if !ok {
		return zero, false
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		t.cache.warn(errors.WrapStorageError(err, errors.ErrorTypeStorageRead, "decode", key))
		return zero, false
	}
	return v, true
}

func (t *Typed[V]) Set(ctx context.Context, key string, value V) {
	t.cache.Set(ctx, key, value)
}

func (t *Typed[V]) GetTimestamp(ctx context.Context, key string) (time.Time, bool) {
	return t.cache.GetTimestamp(ctx, key)
}
