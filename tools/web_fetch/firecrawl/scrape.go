package firecrawl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/compintel/cibot/tools/web_fetch/models"
)

const DefaultBaseURL = "https://api.firecrawl.dev"

// Scrape fetches a URL through the Firecrawl scrape API and returns the
// markdown rendering of the page.
type Scrape struct {
	ApiKey   string
	BaseURL  string
	Timeout  time.Duration
	MaxChars int
}

func (s *Scrape) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, fmt.Errorf("invalid url")
	}
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	t0 := time.Now()

	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	payload := map[string]any{"url": url, "formats": []string{"markdown"}}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(base, "/")+"/v1/scrape", strings.NewReader(string(body)))
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return models.Result{URL: url, Status: resp.StatusCode}, fmt.Errorf("firecrawl scrape returned status %d: %s", resp.StatusCode, msg)
	}

	var raw struct {
		Success bool `json:"success"`
		Data    struct {
			Markdown string `json:"markdown"`
			Metadata struct {
				Title string `json:"title"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.Result{URL: url, Status: resp.StatusCode}, err
	}

	text := raw.Data.Markdown
	if s.MaxChars > 0 && len(text) > s.MaxChars {
		text = text[:s.MaxChars]
	}
	return models.Result{
		URL:      url,
		Title:    strings.TrimSpace(raw.Data.Metadata.Title),
		Text:     strings.TrimSpace(text),
		Status:   resp.StatusCode,
		RenderMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}
