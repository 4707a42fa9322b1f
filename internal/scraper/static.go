package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// StaticConfig controls the plain-fetch capture behavior.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Static captures pages with a plain HTTP fetch via colly. It cannot run
// client-side JavaScript and produces no screenshot; it exists for
// environments without a Chrome binary.
type Static struct {
	cfg StaticConfig
}

// NewStatic creates a static capture client.
func NewStatic(cfg StaticConfig) *Static {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Static{cfg: cfg}
}

// Scrape fetches the raw HTML of the URL and extracts its text.
func (s *Static) Scrape(ctx context.Context, url string) (*PageCapture, error) {
	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(s.cfg.Timeout)

	var (
		html     []byte
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		html = r.Body
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	start := time.Now()
	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	c.Wait()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	loadTime := time.Since(start)

	title, text, err := extractContent(string(html))
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	return &PageCapture{
		URL:           url,
		Title:         title,
		HTML:          string(html),
		Text:          text,
		PageSizeBytes: int64(len(html)),
		LoadTimeMs:    loadTime.Milliseconds(),
	}, nil
}
