package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/compintel/cibot/tools/web_fetch"
	"github.com/compintel/cibot/tools/web_search"
)

// Document is the normalized content of one successfully scraped source,
// attributed to the entity it was acquired for.
type Document struct {
	SourceURL string
	Entity    string
	Title     string
	Content   string
	FetchedAt time.Time
}

// ErrAcquisitionFailed matches acquisition errors via errors.Is.
var ErrAcquisitionFailed = errors.New("acquisition failed")

// AcquisitionError reports that zero sources succeeded for an entity.
// Per-source failures are logged and dropped; only a total failure
// surfaces to the caller.
type AcquisitionError struct {
	Entity    string
	Attempted int
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed for %q: 0 of %d sources succeeded", e.Entity, e.Attempted)
}

func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisitionFailed }

// Acquirer discovers candidate sources for an entity and scrapes them
// with bounded parallelism. A slow or failing source never blocks the
// others.
type Acquirer struct {
	searcher web_search.WebSearcher
	fetcher  web_fetch.WebFetcher
	workers  int
	logger   *log.Logger
}

func New(searcher web_search.WebSearcher, fetcher web_fetch.WebFetcher, workers int, logger *log.Logger) *Acquirer {
	if workers <= 0 {
		workers = 4
	}
	return &Acquirer{searcher: searcher, fetcher: fetcher, workers: workers, logger: logger}
}

// Acquire issues one search call for the entity, then fetches the
// discovered candidates concurrently. searchQuery may be a
// search-optimized variant of the entity name; when empty the entity
// name is used as-is.
func (a *Acquirer) Acquire(ctx context.Context, entity, searchQuery string, maxSources int) ([]Document, error) {
	if searchQuery == "" {
		searchQuery = entity
	}

	results, err := a.searcher.Discover(ctx, searchQuery, maxSources)
	if err != nil {
		return nil, fmt.Errorf("source discovery for %q: %w", entity, err)
	}
	if len(results) == 0 {
		return nil, &AcquisitionError{Entity: entity}
	}

	type job struct {
		idx int
		url string
	}
	jobs := make(chan job)
	docs := make([]*Document, len(results))

	var wg sync.WaitGroup
	workers := a.workers
	if workers > len(results) {
		workers = len(results)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := a.fetcher.Exec(ctx, j.url)
				if err != nil {
					a.logger.Printf("dropping source %s for %q: %v", j.url, entity, err)
					continue
				}
				if strings.TrimSpace(res.Text) == "" {
					a.logger.Printf("dropping source %s for %q: empty content", j.url, entity)
					continue
				}
				docs[j.idx] = &Document{
					SourceURL: res.URL,
					Entity:    entity,
					Title:     res.Title,
					Content:   res.Text,
					FetchedAt: time.Now(),
				}
			}
		}()
	}

	for i, r := range results {
		select {
		case jobs <- job{idx: i, url: r.URL}:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	// compact, preserving discovery order
	var out []Document
	for _, d := range docs {
		if d != nil {
			out = append(out, *d)
		}
	}
	if len(out) == 0 {
		return nil, &AcquisitionError{Entity: entity, Attempted: len(results)}
	}
	return out, nil
}
