// Package fetch retrieves HTML pages for content extraction.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/hyperifyio/postforge/internal/apperr"
)

// DefaultMaxBodyBytes caps how much of a page is read.
const DefaultMaxBodyBytes = 5 << 20

// Page is a fetched HTML document decoded to UTF-8.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// Client wraps http.Client with a per-request timeout, a redirect policy and
// an optional concurrency gate. Requests are attempted once.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Timeout bounds each request, including reading the body. The request
	// context is cancelled when it elapses.
	Timeout time.Duration
	// MaxBodyBytes caps the body size. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int

	limiter     chan struct{}
	limiterOnce sync.Once
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{CheckRedirect: c.checkRedirectFunc()}
}

// Get fetches rawURL. Timeouts surface as apperr.ExtractionTimeout and every
// other failure as apperr.ExtractionFailed.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !IsHTTPScheme(u) || u.Host == "" {
		return Page{}, apperr.E(apperr.ExtractionFailed, "unsupported URL: %q", rawURL)
	}
	if err := c.acquire(ctx); err != nil {
		return Page{}, classify(err, rawURL)
	}
	defer c.release()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.ExtractionFailed, err, "new request")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return Page{}, classify(err, rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, apperr.E(apperr.ExtractionFailed, "fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !isAllowedHTMLContentType(contentType) {
		return Page{}, apperr.E(apperr.ExtractionFailed, "fetch %s: unsupported content type %q", rawURL, contentType)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	reader, err := charset.NewReader(io.LimitReader(resp.Body, limit), contentType)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.ExtractionFailed, err, "decode charset")
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return Page{}, classify(fmt.Errorf("read body: %w", err), rawURL)
	}
	return Page{URL: resp.Request.URL.String(), ContentType: contentType, Body: body}, nil
}

func classify(err error, rawURL string) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return apperr.Wrap(apperr.ExtractionTimeout, err, "fetch "+rawURL+" timed out")
	}
	return apperr.Wrap(apperr.ExtractionFailed, err, "fetch "+rawURL)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Only allow http/https during redirects
		if !IsHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

// IsHTTPScheme reports whether u is an http or https URL.
func IsHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	// allow text/html variants and application/xhtml+xml
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
