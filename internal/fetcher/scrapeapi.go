package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

// ScrapeAPIFetcher routes fetches through an anti-bot scraping intermediary:
// the target URL is posted to the provider, which renders it behind its own
// proxy fleet and returns the page content in a JSON envelope. Providers in
// this class intermittently return 200 with an empty result set under load,
// which is surfaced as a retryable error.
type ScrapeAPIFetcher struct {
	cfg    *config.ScrapeAPIConfig
	client *http.Client
	logger *slog.Logger
}

// NewScrapeAPIFetcher creates a fetcher backed by the configured
// intermediary endpoint.
func NewScrapeAPIFetcher(cfg *config.Config, logger *slog.Logger) *ScrapeAPIFetcher {
	return &ScrapeAPIFetcher{
		cfg: &cfg.Sites.ScrapeAPI,
		client: &http.Client{
			// The intermediary renders pages server-side; calls routinely
			// take longer than a direct fetch.
			Timeout: 180 * time.Second,
		},
		logger: logger.With("component", "scrape_api_fetcher"),
	}
}

// scrapeEnvelope is the provider's response shape.
type scrapeEnvelope struct {
	Results []struct {
		Content    string `json:"content"`
		StatusCode int    `json:"status_code"`
		URL        string `json:"url"`
	} `json:"results"`
}

// Fetch submits the target URL to the intermediary and unwraps the content.
func (f *ScrapeAPIFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if f.cfg.Endpoint == "" {
		return nil, &types.FetchError{
			URL:       req.URL,
			Err:       errors.New("scrape API endpoint not configured"),
			Retryable: false,
		}
	}

	payload := map[string]any{
		"url":         req.URL,
		"geo":         f.cfg.Geo,
		"device_type": f.cfg.DeviceType,
	}
	if f.cfg.Headless {
		payload["headless"] = "html"
	}

	body, _ := json.Marshal(payload)
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, Err: err, Retryable: false}
	}
	apiReq.Header.Set("Accept", "application/json")
	apiReq.Header.Set("Content-Type", "application/json")
	apiReq.Header.Set("Authorization", "Basic "+f.cfg.AuthToken)

	start := time.Now()
	apiResp, err := f.client.Do(apiReq)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{
			URL:       req.URL,
			Err:       fmt.Errorf("scrape API request: %w", err),
			Retryable: isRetryableNetErr(err),
		}
	}
	defer apiResp.Body.Close()

	switch {
	case apiResp.StatusCode == http.StatusUnauthorized:
		return nil, &types.FetchError{
			URL:            req.URL,
			StatusCode:     apiResp.StatusCode,
			Err:            errors.New("scrape API credentials rejected"),
			Retryable:      true,
			SessionExpired: true,
		}
	case apiResp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(apiResp.Body, 512))
		return nil, &types.FetchError{
			URL:        req.URL,
			StatusCode: apiResp.StatusCode,
			Err:        fmt.Errorf("scrape API HTTP %d: %s", apiResp.StatusCode, strings.TrimSpace(string(snippet))),
			Retryable:  apiResp.StatusCode >= 500 || apiResp.StatusCode == http.StatusTooManyRequests,
		}
	}

	var envelope scrapeEnvelope
	if err := json.NewDecoder(apiResp.Body).Decode(&envelope); err != nil {
		return nil, &types.FetchError{URL: req.URL, Err: fmt.Errorf("decode scrape API envelope: %w", err), Retryable: true}
	}
	if len(envelope.Results) == 0 || strings.TrimSpace(envelope.Results[0].Content) == "" {
		return nil, &types.FetchError{
			URL:        req.URL,
			StatusCode: apiResp.StatusCode,
			Err:        types.ErrEmptyContent,
			Retryable:  true,
		}
	}

	result := envelope.Results[0]
	finalURL := result.URL
	if finalURL == "" {
		finalURL = req.URL
	}

	f.logger.Debug("scrape API fetch complete",
		"site", req.Site,
		"url", req.URL,
		"size", len(result.Content),
		"duration", duration,
	)

	return &Response{
		StatusCode:    http.StatusOK,
		Body:          []byte(result.Content),
		FinalURL:      finalURL,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}, nil
}

// Close releases resources.
func (f *ScrapeAPIFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the strategy identifier.
func (f *ScrapeAPIFetcher) Type() string { return "scrape_api" }
