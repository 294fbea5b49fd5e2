// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch downloads the release archives and patch files that
// recipes name.
//
// The Client retries transient failures (connection errors, HTTP 429
// and 5xx) with exponential backoff driven by an injected clock, so
// tests exercise the retry path without real delays. Permanent
// failures (other 4xx) are returned immediately with a bounded excerpt
// of the response body for diagnostics.
//
// Alongside http and https, Fetch accepts file:// URLs and bare local
// paths. Recipes for local or mirrored sources use these, and tests
// lean on them to stage archives without a network.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarry-build/quarry/lib/clock"
)

// MaxDownloadSize bounds a single download: 8 GiB. This exists solely
// to prevent a pathological server from exhausting memory; real source
// archives are orders of magnitude smaller.
const MaxDownloadSize int64 = 8 << 30

// excerptLimit bounds the response-body excerpt included in status
// errors.
const excerptLimit = 512

// defaultRetries is the number of retry attempts after a failed first
// try. Three attempts total with 1s, 2s backoff covers brief rate
// limits and server hiccups.
const defaultRetries = 2

// Resource is one download with an optional checksum to enforce.
type Resource struct {
	URL    string
	SHA256 string // lower-case hex; empty means unchecked
}

// Client downloads resources. The zero value is usable: it uses
// http.DefaultClient, a discard logger, the real clock, and
// defaultRetries.
type Client struct {
	// HTTP is the underlying HTTP client. nil means
	// http.DefaultClient.
	HTTP *http.Client

	// Logger receives retry warnings and download records. nil means
	// discard.
	Logger *slog.Logger

	// Clock drives retry backoff. nil means the real clock.
	Clock clock.Clock

	// Retries is the number of additional attempts after a failed
	// first try. Zero means defaultRetries; negative disables retry.
	Retries int

	// UserAgent is sent with every request. Empty means
	// "quarry-fetch".
	UserAgent string
}

// StatusError is a non-2xx HTTP response. The body excerpt is bounded
// and may be empty.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Fetch downloads a single URL and returns its content. https, http,
// file:// and bare local paths are supported. Transient HTTP failures
// are retried with exponential backoff; the context bounds the total
// time including backoff waits.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		return c.fetchHTTP(ctx, rawURL)
	case "file":
		return c.readLocal(parsed.Path)
	case "":
		return c.readLocal(rawURL)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
}

// FetchAll downloads every resource with at most jobs concurrent
// downloads, verifying declared checksums. The first failure cancels
// the remaining downloads. Results are returned in resource order.
func (c *Client) FetchAll(ctx context.Context, resources []Resource, jobs int) ([][]byte, error) {
	if jobs < 1 {
		return nil, fmt.Errorf("parallel jobs must be at least 1, got %d", jobs)
	}

	results := make([][]byte, len(resources))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(jobs)

	for i, resource := range resources {
		group.Go(func() error {
			data, err := c.Fetch(groupCtx, resource.URL)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", resource.URL, err)
			}
			if resource.SHA256 != "" {
				if err := VerifySHA256(data, resource.SHA256); err != nil {
					return fmt.Errorf("fetching %s: %w", resource.URL, err)
				}
			}
			results[i] = data
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	var lastError error
	for attempt := 0; attempt < c.attempts(); attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock().After(backoff):
			}
		}

		data, err := c.fetchOnce(ctx, rawURL)
		if err == nil {
			c.logger().Debug("downloaded", "url", rawURL, "bytes", len(data))
			return data, nil
		}
		lastError = err

		if !isTransientError(err) {
			return nil, err
		}

		c.logger().Warn("transient download failure, retrying",
			"url", rawURL,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, lastError
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("User-Agent", c.userAgent())

	response, err := c.httpClient().Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, &StatusError{
			URL:        rawURL,
			StatusCode: response.StatusCode,
			Body:       errorExcerpt(response.Body),
		}
	}

	data, err := io.ReadAll(io.LimitReader(response.Body, MaxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return data, nil
}

// readLocal serves file:// URLs and bare paths. No retry: local reads
// do not fail transiently.
func (c *Client) readLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading local file: %w", err)
	}
	return data, nil
}

// isTransientError reports whether an error is worth retrying:
// connection failures, rate limiting (429), and server errors (5xx).
// Other 4xx responses indicate a permanent problem, as does a
// cancelled context.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusError *StatusError
	if errors.As(err, &statusError) {
		if statusError.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if statusError.StatusCode >= 500 {
			return true
		}
		return false
	}

	// Connection refused, timeout, EOF.
	return true
}

// errorExcerpt reads a bounded excerpt of an HTTP error response body
// for diagnostic messages. Read errors are ignored; a partial or empty
// body is still useful.
func errorExcerpt(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, excerptLimit))
	return strings.TrimSpace(string(data))
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *Client) clock() clock.Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return clock.Real()
}

func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return "quarry-fetch"
}

func (c *Client) attempts() int {
	switch {
	case c.Retries < 0:
		return 1
	case c.Retries == 0:
		return defaultRetries + 1
	default:
		return c.Retries + 1
	}
}
