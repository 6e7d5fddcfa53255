// Package overlay fetches external ICS subscriptions and expands them into
// concrete occurrences shown on the calendar next to the moon phase
// markers. Fetching honors ETag/Last-Modified with a disk-backed cache and
// falls back to the cached body when a source is unreachable.
package overlay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "mooncal/internal/log"
)

// Source identifies one ICS subscription.
type Source struct {
	ID  string
	URL string
}

// Feed is the fetched payload for one source.
type Feed struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// cacheMeta stores the HTTP validators for one cached feed body.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Client fetches ICS feeds with conditional requests and a disk cache.
type Client struct {
	http     *http.Client
	cacheDir string
}

// NewClient returns a Client caching feed bodies under cacheDir.
func NewClient(cacheDir string) *Client {
	if cacheDir == "" {
		cacheDir = "./var/overlay-cache"
	}
	return &Client{
		http:     &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// FetchAll fetches every source. Failed sources are logged and collected
// into the returned error slice; the Feed slice only holds sources that
// produced a body.
func (c *Client) FetchAll(ctx context.Context, sources []Source) ([]Feed, []error) {
	feeds := make([]Feed, 0, len(sources))
	var errs []error

	for _, src := range sources {
		feed, err := c.Fetch(ctx, src)
		if err != nil {
			errs = append(errs, err)
			applog.Error("overlay fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		feeds = append(feeds, feed)
	}

	return feeds, errs
}

// Fetch fetches a single source, reusing the cached body on 304 or on
// network failure.
func (c *Client) Fetch(ctx context.Context, src Source) (Feed, error) {
	if src.URL == "" {
		return Feed{}, errors.New("overlay: source URL is empty")
	}
	if err := os.MkdirAll(c.cacheDir, 0o700); err != nil {
		return Feed{}, err
	}

	key := cacheKey(src.URL)
	meta, _ := c.loadMeta(key)
	cached, _ := os.ReadFile(c.bodyPath(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Feed{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if len(cached) > 0 {
			applog.Warn("overlay fetch network error; using cached body", "id", src.ID, "url", redactURL(src.URL))
			return Feed{Source: src, Body: cached, FromCache: true}, nil
		}
		return Feed{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Feed{}, err
		}
		if err := c.store(key, cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}, body); err != nil {
			applog.Error("overlay cache write failed", err, "id", src.ID)
		}
		applog.Debug("overlay fetch ok", "id", src.ID, "bytes", len(body))
		return Feed{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Feed{}, errors.New("overlay: 304 Not Modified but no cached body")
		}
		return Feed{Source: src, Body: cached, FromCache: true}, nil

	default:
		if len(cached) > 0 {
			applog.Warn("overlay fetch non-OK; using cached body", "id", src.ID, "status", resp.StatusCode)
			return Feed{Source: src, Body: cached, FromCache: true}, nil
		}
		return Feed{}, errors.New("overlay: " + resp.Status)
	}
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8])
}

func (c *Client) bodyPath(key string) string {
	return filepath.Join(c.cacheDir, key+".ics")
}

func (c *Client) metaPath(key string) string {
	return filepath.Join(c.cacheDir, key+".json")
}

func (c *Client) loadMeta(key string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func (c *Client) store(key string, meta cacheMeta, body []byte) error {
	// Body first so the meta never points at a missing body.
	if err := os.WriteFile(c.bodyPath(key), body, 0o600); err != nil {
		return err
	}
	data, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	return os.WriteFile(c.metaPath(key), data, 0o600)
}

// redactURL strips everything after the host so tokens in subscription
// URLs never reach the logs.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/...(redacted)"
}
