package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	appLog "cecal/internal/log"
	"cecal/internal/model"
)

var (
	// ErrAllSourcesFailed is returned when every candidate URL failed and no
	// cached copy exists.
	ErrAllSourcesFailed = errors.New("all feed sources failed")
	// ErrNoCache is returned by LoadCache when nothing has been cached yet.
	ErrNoCache = errors.New("no cached feed")
)

const (
	cacheBodyFile = "feed.json"
	cacheMetaFile = "meta.json"
	userAgent     = "cecal/1.0 (+feed fetcher)"
)

// Options configures a Fetcher.
type Options struct {
	// URLs are tried in order until one returns a well-formed feed.
	URLs []string
	// Timeout bounds each candidate request.
	Timeout time.Duration
	// CacheDir holds the last good feed body and its metadata.
	CacheDir string
	// CacheTTL is how long a cached feed is served without hitting the network.
	CacheTTL time.Duration
}

// Result is a decoded feed plus where it came from.
type Result struct {
	Events    []model.Event
	Skipped   []Skipped
	Source    string
	FetchedAt time.Time
	// FromCache is true when the body came from disk (fresh cache, 304, or fallback).
	FromCache bool
	// Stale is true when an expired cache was used because the network failed.
	Stale bool
}

// cacheEntry holds HTTP cache metadata for the stored feed body.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Fetcher downloads the events feed from a list of candidate URLs with a
// disk-backed cache (ETag / Last-Modified, TTL, offline fallback).
type Fetcher struct {
	client   *resty.Client
	urls     []string
	cacheDir string
	ttl      time.Duration
	now      func() time.Time
}

// NewFetcher creates a Fetcher. A relative ./var/feed-cache is used when
// opts.CacheDir is empty so development runs work without root.
func NewFetcher(opts Options) *Fetcher {
	if opts.CacheDir == "" {
		opts.CacheDir = "./var/feed-cache"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	return &Fetcher{
		client:   client,
		urls:     append([]string(nil), opts.URLs...),
		cacheDir: opts.CacheDir,
		ttl:      opts.CacheTTL,
		now:      time.Now,
	}
}

// Fetch returns the current feed. A cache younger than the TTL is used
// directly; otherwise each candidate URL is tried in sequence. When every
// candidate fails the last cached copy is returned with Stale set, and only
// if there is none does Fetch fail with ErrAllSourcesFailed.
func (f *Fetcher) Fetch(ctx context.Context) (Result, error) {
	meta, cachedBody, cacheErr := f.loadCache()
	if cacheErr == nil && f.ttl > 0 && f.now().Sub(meta.FetchedAt) < f.ttl {
		res, err := decodeResult(cachedBody, meta.URL, meta.FetchedAt)
		if err == nil {
			res.FromCache = true
			appLog.Info("feed cache fresh; skipping network", "source", redactURL(meta.URL), "age", f.now().Sub(meta.FetchedAt).Round(time.Second))
			return res, nil
		}
		appLog.Error("feed cache unreadable; ignoring", err)
	}

	var errs []error
	if len(f.urls) == 0 {
		errs = append(errs, errors.New("no candidate URLs configured"))
	}
	for _, u := range f.urls {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := f.fetchOne(ctx, u, meta, cachedBody)
		if err != nil {
			appLog.Warn("feed candidate failed", "url", redactURL(u), "reason", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", redactURL(u), err))
			continue
		}
		return res, nil
	}

	if cacheErr == nil {
		res, err := decodeResult(cachedBody, meta.URL, meta.FetchedAt)
		if err == nil {
			res.FromCache = true
			res.Stale = true
			appLog.Warn("feed unreachable; serving stale cache", "fetched_at", meta.FetchedAt.Format(time.RFC3339), "candidates", len(f.urls))
			return res, nil
		}
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	return Result{}, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
}

// fetchOne performs a single candidate request, honoring ETag and
// Last-Modified when the cache came from the same URL.
func (f *Fetcher) fetchOne(ctx context.Context, u string, meta cacheEntry, cachedBody []byte) (Result, error) {
	req := f.client.R().SetContext(ctx)
	conditional := meta.URL == u && len(cachedBody) > 0
	if conditional {
		if meta.ETag != "" {
			req.SetHeader("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.SetHeader("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("feed fetch start", "url", redactURL(u))

	resp, err := req.Get(u)
	if err != nil {
		return Result{}, err
	}

	now := f.now().UTC()

	switch {
	case resp.StatusCode() == http.StatusNotModified && conditional:
		res, err := decodeResult(cachedBody, u, now)
		if err != nil {
			return Result{}, err
		}
		meta.FetchedAt = now
		if err := f.saveMeta(meta); err != nil {
			appLog.Error("feed cache meta save failed", err, "url", redactURL(u))
		}
		res.FromCache = true
		appLog.Info("feed not modified; using cache", "url", redactURL(u), "events", len(res.Events))
		return res, nil

	case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
		body := resp.Body()
		res, err := decodeResult(body, u, now)
		if err != nil {
			return Result{}, err
		}
		newMeta := cacheEntry{
			URL:          u,
			ETag:         resp.Header().Get("ETag"),
			LastModified: resp.Header().Get("Last-Modified"),
			FetchedAt:    now,
		}
		if err := f.saveCache(newMeta, body); err != nil {
			// Log but still return the freshly fetched feed.
			appLog.Error("feed cache save failed", err, "url", redactURL(u))
		}
		appLog.Info("feed fetch success", "url", redactURL(u), "status", resp.StatusCode(), "events", len(res.Events), "skipped", len(res.Skipped))
		return res, nil

	default:
		return Result{}, fmt.Errorf("unexpected status %s", resp.Status())
	}
}

func decodeResult(body []byte, source string, fetchedAt time.Time) (Result, error) {
	events, skipped, err := DecodeFeed(body)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Events:    events,
		Skipped:   skipped,
		Source:    source,
		FetchedAt: fetchedAt,
	}, nil
}

// LoadCache returns the cached feed regardless of age.
func (f *Fetcher) LoadCache() (Result, error) {
	meta, body, err := f.loadCache()
	if err != nil {
		return Result{}, err
	}
	res, err := decodeResult(body, meta.URL, meta.FetchedAt)
	if err != nil {
		return Result{}, err
	}
	res.FromCache = true
	res.Stale = f.ttl > 0 && f.now().Sub(meta.FetchedAt) >= f.ttl
	return res, nil
}

func (f *Fetcher) loadCache() (cacheEntry, []byte, error) {
	var meta cacheEntry

	data, err := os.ReadFile(filepath.Join(f.cacheDir, cacheMetaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta, nil, ErrNoCache
		}
		return meta, nil, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, nil, err
	}

	body, err := os.ReadFile(filepath.Join(f.cacheDir, cacheBodyFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta, nil, ErrNoCache
		}
		return meta, nil, err
	}
	return meta, body, nil
}

func (f *Fetcher) saveCache(meta cacheEntry, body []byte) error {
	if err := os.MkdirAll(f.cacheDir, 0o700); err != nil {
		return err
	}
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(f.cacheDir, cacheBodyFile), body, 0o600); err != nil {
		return err
	}
	return f.saveMeta(meta)
}

func (f *Fetcher) saveMeta(meta cacheEntry) error {
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.cacheDir, cacheMetaFile), data, 0o600)
}

// redactURL keeps scheme, host and path but drops query strings, which
// may carry access tokens.
func redactURL(u string) string {
	for i := 0; i < len(u); i++ {
		if u[i] == '?' || u[i] == '#' {
			return u[:i] + "?...(redacted)"
		}
	}
	return u
}
