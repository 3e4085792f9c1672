package web_search

import (
	"context"
	"errors"

	"github.com/compintel/cibot/tools/web_search/firecrawl"
	"github.com/compintel/cibot/tools/web_search/models"
	"github.com/compintel/cibot/tools/web_search/serper"
)

// WebSearcher discovers candidate source URLs for a search query.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	FirecrawlProvider Provider = "firecrawl"
	SerperProvider    Provider = "serper"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

func NewWebSearcher(provider Provider, apiKey, baseURL string) (WebSearcher, error) {
	switch provider {
	case FirecrawlProvider:
		return firecrawl.Search{ApiKey: apiKey, BaseURL: baseURL}, nil
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
