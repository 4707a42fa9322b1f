package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// BrowserConfig controls the headless capture behavior.
type BrowserConfig struct {
	UserAgent         string
	SettleTime        time.Duration
	NavigationTimeout time.Duration
}

// Browser captures pages with headless Chrome via chromedp. One exec
// allocator is shared for the process lifetime; each capture gets its own
// browser context.
type Browser struct {
	cfg         BrowserConfig
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewBrowser creates the shared exec allocator.
func NewBrowser(cfg BrowserConfig) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleTime <= 0 {
		cfg.SettleTime = 3 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
}

// Close cancels the allocator context.
func (b *Browser) Close() {
	b.allocCancel()
}

// Scrape navigates to the URL, waits a fixed settle time for client-side
// rendering, and returns the rendered DOM, visible text, and a screenshot.
func (b *Browser) Scrape(ctx context.Context, url string) (*PageCapture, error) {
	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, b.cfg.NavigationTimeout)
	defer cancel()

	// Propagate caller cancellation into the browser context.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	var (
		html       string
		screenshot []byte
	)
	start := time.Now()
	actions := []chromedp.Action{
		b.userAgentAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.SettleTime),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&screenshot, 80),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	loadTime := time.Since(start)

	title, text, err := extractContent(html)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	return &PageCapture{
		URL:           url,
		Title:         title,
		HTML:          html,
		Text:          text,
		Screenshot:    screenshot,
		PageSizeBytes: int64(len(html)),
		LoadTimeMs:    loadTime.Milliseconds(),
	}, nil
}

func (b *Browser) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if b.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}
