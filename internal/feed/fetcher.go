package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pders01/feedq/internal/config"
)

const (
	defaultUserAgent = "feedq/1.0 (feed relay; github.com/pders01/feedq)"
	defaultTimeout   = 30 * time.Second
	defaultMaxBytes  = 10 << 20
)

// Fetcher performs conditional GETs against a single feed URL and
// remembers the validators the server handed out.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64

	mu           sync.Mutex
	etag         string
	lastModified string
}

func NewFetcher(cfg *config.Config) *Fetcher {
	timeout := defaultTimeout
	userAgent := defaultUserAgent
	if cfg != nil {
		if cfg.Feed.HTTPTimeout > 0 {
			timeout = cfg.Feed.HTTPTimeout
		}
		if cfg.Feed.UserAgent != "" {
			userAgent = cfg.Feed.UserAgent
		}
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBytes:  defaultMaxBytes,
	}
}

// Fetch returns the feed body, or nil with no error when the server
// answered 304 Not Modified.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	f.mu.Lock()
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	if f.lastModified != "" {
		req.Header.Set("If-Modified-Since", f.lastModified)
	}
	f.mu.Unlock()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, nil
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("feed larger than %d bytes", f.maxBytes)
	}

	f.remember(resp)
	return body, nil
}

func (f *Fetcher) remember(resp *http.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if etag := resp.Header.Get("ETag"); etag != "" {
		f.etag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		f.lastModified = lastMod
	}
}

// Reset forgets cached validators so the next Fetch is unconditional.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	f.etag, f.lastModified = "", ""
	f.mu.Unlock()
}
