package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

// BrowserFetcher renders pages in headless Chromium via Rod with stealth
// patches. It is the last-resort strategy for listing pages whose anti-bot
// wall rejects both direct HTTP and the scraping intermediary.
type BrowserFetcher struct {
	browser *rod.Browser
	cfg     *config.Config
	logger  *slog.Logger
}

// NewBrowserFetcher launches a headless browser and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf := &BrowserFetcher{
		browser: browser,
		cfg:     cfg,
		logger:  logger.With("component", "browser_fetcher"),
	}
	bf.logger.Info("browser fetcher ready")
	return bf, nil
}

// Fetch navigates to the request URL and returns the rendered HTML.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	page, err := stealth.Page(bf.browser)
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, Err: fmt.Errorf("stealth page: %w", err), Retryable: true}
	}
	defer page.Close()

	page = page.Context(ctx)

	if ua, ok := req.Headers["User-Agent"]; ok && ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if len(req.Cookies) > 0 {
		cookies := make([]*proto.NetworkCookieParam, 0, len(req.Cookies))
		for name, value := range req.Cookies {
			cookies = append(cookies, &proto.NetworkCookieParam{
				Name:  name,
				Value: value,
				URL:   req.URL,
			})
		}
		if err := page.SetCookies(cookies); err != nil {
			bf.logger.Warn("failed to set cookies", "error", err)
		}
	}

	timeout := bf.cfg.Fetcher.RequestTimeout
	if err := page.Timeout(timeout).Navigate(req.URL); err != nil {
		return nil, &types.FetchError{URL: req.URL, Err: err, Retryable: true}
	}
	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", req.URL, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, Err: err, Retryable: true}
	}

	finalURL := req.URL
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	bf.logger.Debug("browser fetch complete",
		"site", req.Site,
		"url", req.URL,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return &Response{
		StatusCode:    http.StatusOK, // Rod does not expose the status code
		Body:          []byte(html),
		FinalURL:      finalURL,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}, nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the strategy identifier.
func (bf *BrowserFetcher) Type() string { return "browser" }
