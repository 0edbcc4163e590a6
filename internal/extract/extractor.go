package extract

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/fetch"
)

// WordsPerMinute is the reading speed used for ReadingTime.
const WordsPerMinute = 200

// Result is the outcome of extracting one URL.
type Result struct {
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	ExtractedAt time.Time `json:"extractedAt"`
	WordCount   int       `json:"wordCount"`
	ReadingTime int       `json:"readingTime"`
	Strategy    Strategy  `json:"strategy"`
}

// Fetcher retrieves a page. *fetch.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (fetch.Page, error)
}

// Policy decides whether a URL may be fetched. *robots.Manager implements it.
type Policy interface {
	Allowed(ctx context.Context, rawURL string) (bool, error)
}

// Extractor fetches a URL and extracts its readable text.
type Extractor struct {
	Fetcher Fetcher
	// Policy is optional; nil allows every URL.
	Policy Policy
	Now    func() time.Time
}

// CanHandle reports whether rawURL is an absolute http or https URL.
func (e *Extractor) CanHandle(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	return err == nil && fetch.IsHTTPScheme(u) && u.Host != ""
}

// Extract fetches rawURL and returns its cleaned article text.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Result, error) {
	if !e.CanHandle(rawURL) {
		return Result{}, apperr.E(apperr.ExtractionFailed, "unsupported URL: %q", rawURL)
	}
	if e.Fetcher == nil {
		return Result{}, apperr.E(apperr.Internal, "extractor has no fetcher")
	}
	if e.Policy != nil {
		ok, err := e.Policy.Allowed(ctx, rawURL)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, apperr.E(apperr.ExtractionFailed, "fetching %s is disallowed by robots.txt", rawURL)
		}
	}
	page, err := e.Fetcher.Get(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}
	doc, strategy, err := FromHTML(page.Body, page.URL)
	if err != nil {
		log.Debug().Str("url", rawURL).Str("stage", "extract").Err(err).Msg("extraction rejected")
		return Result{}, err
	}
	words := len(strings.Fields(doc.Text))
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	log.Debug().Str("url", rawURL).Str("strategy", string(strategy)).Int("words", words).Msg("extracted")
	return Result{
		Title:       doc.Title,
		Content:     doc.Text,
		URL:         page.URL,
		ExtractedAt: now(),
		WordCount:   words,
		ReadingTime: (words + WordsPerMinute - 1) / WordsPerMinute,
		Strategy:    strategy,
	}, nil
}
