package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Service is the best-effort contract consumers depend on
type Service interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, value any)
	GetTimestamp(ctx context.Context, key string) (time.Time, bool)
}

// Admin adds the maintenance operations used by the CLI
type Admin interface {
	Service
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
	Entries(ctx context.Context) ([]EntryInfo, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Ensure Cache implements Admin
var _ Admin = (*Cache)(nil)
