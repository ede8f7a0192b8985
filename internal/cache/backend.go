package cache

import "context"

// Record is one row of the store. Value holds JSON text.
type Record struct {
	Key   string
	Value []byte
}

// Backend is the durable key-value store behind a Cache. Value records and
// timestamp records share one key space.
type Backend interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put upserts all records in a single transaction.
	Put(ctx context.Context, records ...Record) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) ([]Record, error)
	Clear(ctx context.Context) error
	// Size reports the storage footprint in bytes.
	Size(ctx context.Context) (int64, error)
	Close() error
}

// compactor is implemented by backends that can reclaim space after deletes.
type compactor interface {
	Compact(ctx context.Context) error
}
