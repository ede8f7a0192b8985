package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mts/internal/errors"
)

// File is the on-disk configuration. Zero values fall back to defaults.
type File struct {
	Source string `yaml:"-"`

	Backend BackendConfig `yaml:"backend"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
}

type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	Dir          string        `yaml:"dir"`
	Freshness    time.Duration `yaml:"freshness"`
	AtomicWrites *bool         `yaml:"atomic_writes"`
	Timeout      time.Duration `yaml:"timeout"`
	StaleIfError bool          `yaml:"stale_if_error"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *File {
	atomic := true
	return &File{
		Backend: BackendConfig{
			URL:     DefaultBackendURL,
			Timeout: DefaultRequestTimeout,
		},
		Cache: CacheConfig{
			Freshness:    DefaultFreshness,
			AtomicWrites: &atomic,
		},
		Log: LogConfig{Level: "error"},
	}
}

// Atomic reports whether value and timestamp are written in one transaction.
func (f *File) Atomic() bool {
	return f.Cache.AtomicWrites == nil || *f.Cache.AtomicWrites
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error. Environment overrides are applied
// last and the result is validated.
func Load(path string) (*File, error) {
	if path == "" {
		path = defaultPath()
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.WrapConfigError(fmt.Errorf("failed to parse %s: %w", path, err), path)
			}
			cfg.Source = path
		case os.IsNotExist(err):
		default:
			return nil, errors.WrapConfigError(fmt.Errorf("failed to read %s: %w", path, err), path)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapConfigError(err, cfg.Source)
	}
	return cfg, nil
}

func (f *File) applyDefaults() {
	def := Default()
	if f.Backend.URL == "" {
		f.Backend.URL = def.Backend.URL
	}
	if f.Backend.Timeout == 0 {
		f.Backend.Timeout = def.Backend.Timeout
	}
	if f.Cache.Freshness == 0 {
		f.Cache.Freshness = def.Cache.Freshness
	}
	if f.Log.Level == "" {
		f.Log.Level = def.Log.Level
	}
}

func (f *File) applyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		f.Backend.URL = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		f.Cache.Dir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		f.Log.Level = v
	}
}

// Validate checks the values a user can get wrong.
func (f *File) Validate() error {
	u, err := url.Parse(f.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.url %q is not an absolute URL", f.Backend.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url scheme must be http or https, got %s", u.Scheme)
	}
	if f.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if f.Cache.Freshness <= 0 {
		return fmt.Errorf("cache.freshness must be positive, got %s", f.Cache.Freshness)
	}
	if f.Cache.Timeout < 0 {
		return fmt.Errorf("cache.timeout must not be negative")
	}
	return nil
}

// CacheDir resolves the cache directory following XDG conventions.
func (f *File) CacheDir() (string, error) {
	if f.Cache.Dir != "" {
		return f.Cache.Dir, nil
	}
	return DefaultCacheDir()
}

// DefaultCacheDir returns MTS_CACHE_DIR, $XDG_CACHE_HOME/mts, or ~/.cache/mts.
func DefaultCacheDir() (string, error) {
	if cacheDir := os.Getenv(EnvCacheDir); cacheDir != "" {
		return cacheDir, nil
	}

	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, "mts"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".cache", "mts"), nil
}

func defaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mts", "config.yaml")
	}
	return ""
}
