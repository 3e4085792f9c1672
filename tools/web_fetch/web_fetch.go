package web_fetch

import (
	"context"
	"errors"
	"time"

	"github.com/compintel/cibot/tools/web_fetch/chromedp"
	"github.com/compintel/cibot/tools/web_fetch/firecrawl"
	"github.com/compintel/cibot/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

// WebFetcher scrapes one URL into normalized text.
type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	FirecrawlFetcherType FetcherType = "firecrawl"
	ChromedpFetcherType  FetcherType = "chromedp"
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

func NewWebFetcher(fetcherType FetcherType, apiKey, baseURL string, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case FirecrawlFetcherType:
		return &firecrawl.Scrape{ApiKey: apiKey, BaseURL: baseURL, Timeout: timeout, MaxChars: maxChars}, nil
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}
