package utils

import (
	"github.com/apex/log"

	"mts/internal/cache"
	"mts/internal/config"
)

// NewCache creates the cache described by cfg. With noPersist the cache lives
// in memory for the lifetime of the process. The cache directory is resolved
// when the cache is first used, so an unresolvable directory surfaces as an
// unavailable cache rather than an error here.
func NewCache(cfg *config.File, noPersist bool) *cache.Cache {
	if cfg == nil {
		cfg = config.Default()
	}

	opts := []cache.Option{
		cache.WithAtomicWrites(cfg.Atomic()),
		cache.WithTimeout(cfg.Cache.Timeout),
	}

	if noPersist {
		opts = append(opts, cache.WithBackend(cache.NewMemoryBackend()))
		return cache.New(opts...)
	}

	dir, err := cfg.CacheDir()
	if err != nil {
		log.WithError(err).Debug("cache directory not resolved yet")
		dir = ""
	}
	opts = append(opts, cache.WithBackendOpener(cache.SQLiteOpener(dir)))
	return cache.New(opts...)
}
