package config

import "time"

// Storage identity. Bumping SchemaVersion triggers the one-time store
// creation step on next open; downgrades are refused.
const (
	DatabaseName  = "medieteknik"
	StoreName     = "search_cache"
	SchemaVersion = 1
)

// TimestampSuffix marks the companion record holding a key's last write time.
const TimestampSuffix = "_timestamp"

// Cache freshness configuration
const (
	SearchFreshness  = 5 * time.Minute // Search results go stale quickly
	DefaultFreshness = SearchFreshness
)

// Backend configuration
const (
	DefaultBackendURL     = "https://api.medieteknik.com"
	DefaultRequestTimeout = 10 * time.Second
	SearchPath            = "/api/v1/search"
)

// UI configuration
const (
	DefaultTableHeight = 20
	MinTableHeight     = 5

	// Browser column widths
	KeyColumnWidth  = 40
	SizeColumnWidth = 10
	AgeColumnWidth  = 18
)

// Environment variables
const (
	EnvConfig     = "MTS_CONFIG"
	EnvCacheDir   = "MTS_CACHE_DIR"
	EnvBackendURL = "MTS_BACKEND_URL"
	EnvLogLevel   = "MTS_LOG"
)
