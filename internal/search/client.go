package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mts/internal/cache"
	"mts/internal/config"
	"mts/internal/errors"
	"mts/internal/retry"
	"mts/internal/validation"
)

const maxResponseBytes = 8 << 20

// Source tells where a result came from
type Source int

const (
	SourceNetwork Source = iota
	SourceCache
	SourceStale
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceStale:
		return "stale"
	default:
		return "network"
	}
}

// Response is the backend's search payload
type Response struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// Result is a search response plus provenance
type Result struct {
	Response
	Key       string
	Source    Source
	FetchedAt time.Time
	// Raw is the JSON document as returned by the backend.
	Raw json.RawMessage
}

// Client queries the search backend, using the cache as an optional accelerator
type Client struct {
	cache        cache.Service
	httpClient   *http.Client
	baseURL      string
	freshness    time.Duration
	staleIfError bool
	retry        *retry.Config
	logger       log.Interface
	now          func() time.Time

	group singleflight.Group
}

// Option configures a Client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryConfig(rc *retry.Config) Option {
	return func(c *Client) { c.retry = rc }
}

func WithLogger(l log.Interface) Option {
	return func(c *Client) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithStaleIfError serves an expired cached result when the backend fails.
func WithStaleIfError(enabled bool) Option {
	return func(c *Client) { c.staleIfError = enabled }
}

// NewClient creates a search client. c may be nil to disable caching.
func NewClient(cfg *config.File, c cache.Service, opts ...Option) *Client {
	if cfg == nil {
		cfg = config.Default()
	}

	client := &Client{
		cache:        c,
		httpClient:   &http.Client{Timeout: cfg.Backend.Timeout},
		baseURL:      strings.TrimRight(cfg.Backend.URL, "/"),
		freshness:    cfg.Cache.Freshness,
		staleIfError: cfg.Cache.StaleIfError,
		retry:        retry.QuickConfig(),
		logger:       log.Log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Search returns results for q, from the cache when a fresh entry exists and
// from the backend otherwise.
func (c *Client) Search(ctx context.Context, q Query) (*Result, error) {
	norm, err := q.Normalize()
	if err != nil {
		return nil, errors.WrapValidationError(err, q.Text)
	}

	key := norm.Key()
	cacheable := c.cache != nil
	if err := validation.ValidateKey(key); err != nil {
		c.logger.WithField("key", key).WithError(err).Debug("query not cacheable")
		cacheable = false
	}

	maxAge := norm.MaxAge
	if maxAge <= 0 {
		maxAge = c.freshness
	}

	if cacheable && !norm.NoCache {
		if res, ok := c.fromCache(ctx, key, maxAge); ok {
			return res, nil
		}
	}

	// The shared fetch outlives any single caller; the HTTP client timeout
	// bounds it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		body, err := c.fetch(shared, norm)
		if err == nil && cacheable {
			c.cache.Set(shared, key, json.RawMessage(body))
		}
		return body, err
	})

	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	v, err := r.Val, r.Err
	if err != nil {
		if c.staleIfError && cacheable {
			if res, ok := c.fromCache(ctx, key, -1); ok {
				c.logger.WithField("key", key).WithError(err).Warn("serving stale search result")
				return res, nil
			}
		}
		return nil, err
	}

	body := v.([]byte)
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Result{
		Response:  resp,
		Key:       key,
		Source:    SourceNetwork,
		FetchedAt: c.now(),
		Raw:       body,
	}, nil
}

// fromCache returns the cached result for key if it is younger than maxAge.
// A negative maxAge accepts any age and marks the result stale.
func (c *Client) fromCache(ctx context.Context, key string, maxAge time.Duration) (*Result, bool) {
	ts, ok := c.cache.GetTimestamp(ctx, key)
	if !ok {
		return nil, false
	}

	source := SourceCache
	if maxAge < 0 {
		source = SourceStale
	} else if c.now().Sub(ts) > maxAge {
		return nil, false
	}

	raw, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.WithField("key", key).WithError(err).Debug("cached search result unreadable")
		return nil, false
	}

	return &Result{
		Response:  resp,
		Key:       key,
		Source:    source,
		FetchedAt: ts,
		Raw:       raw,
	}, true
}

func (c *Client) fetch(ctx context.Context, q Query) ([]byte, error) {
	url := c.baseURL + config.SearchPath + "?" + q.Values().Encode()

	var body []byte
	err := retry.WithRetry(ctx, c.retry, "search", func() error {
		var fetchErr error
		body, fetchErr = c.do(ctx, url)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	c.logger.WithFields(log.Fields{"url": url, "request_id": requestID}).Debug("search request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapTransportError(err, "search", url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.WrapTransportError(err, "search", url)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.WrapHTTPError(resp.StatusCode, string(data), "search", url)
	}

	var check Response
	if err := json.Unmarshal(data, &check); err != nil {
		return nil, &errors.AppError{
			Type:       errors.ErrorTypeAPI,
			Message:    "Search backend returned malformed JSON",
			Underlying: err,
			Retryable:  false,
			Context:    map[string]string{"operation": "search", "url": url},
		}
	}

	return data, nil
}
