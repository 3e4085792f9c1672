package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/compintel/cibot/internal/index/models"
)

// Store talks to a Pinecone serverless index over its data-plane HTTP
// API. Namespaces are implicit in Pinecone: they come into existence on
// first upsert and are removed with a deleteAll call.
type Store struct {
	apiKey     string
	indexHost  string
	httpClient *http.Client
}

func NewStore(apiKey, indexHost string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if !strings.HasPrefix(indexHost, "http") {
		indexHost = "https://" + indexHost
	}
	return &Store{
		apiKey:     apiKey,
		indexHost:  strings.TrimRight(indexHost, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateNamespace is a no-op: Pinecone creates namespaces lazily on the
// first upsert into them.
func (s *Store) CreateNamespace(ctx context.Context, id string) error {
	return nil
}

func (s *Store) Upsert(ctx context.Context, namespaceID string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	type vector struct {
		ID       string            `json:"id"`
		Values   []float32         `json:"values"`
		Metadata map[string]string `json:"metadata"`
	}
	vectors := make([]vector, 0, len(records))
	for _, r := range records {
		vectors = append(vectors, vector{
			ID:     r.ID,
			Values: r.Vector,
			Metadata: map[string]string{
				"text":       r.Text,
				"source_url": r.SourceURL,
				"entity":     r.Entity,
				"section":    r.Section,
				"category":   r.Category,
				"seq":        fmt.Sprintf("%08d", r.Seq),
			},
		})
	}
	payload := map[string]any{"vectors": vectors, "namespace": namespaceID}
	var resp struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	if err := s.post(ctx, "/vectors/upsert", payload, &resp); err != nil {
		return err
	}
	if resp.UpsertedCount != len(vectors) {
		return fmt.Errorf("pinecone acked %d of %d vectors", resp.UpsertedCount, len(vectors))
	}
	return nil
}

func (s *Store) Query(ctx context.Context, namespaceID string, vec []float32, topK int) ([]models.Match, error) {
	payload := map[string]any{
		"vector":          vec,
		"topK":            topK,
		"namespace":       namespaceID,
		"includeMetadata": true,
	}
	var resp struct {
		Matches []struct {
			ID       string            `json:"id"`
			Score    float32           `json:"score"`
			Metadata map[string]string `json:"metadata"`
		} `json:"matches"`
	}
	if err := s.post(ctx, "/query", payload, &resp); err != nil {
		return nil, err
	}

	// re-sort to pin the insertion-order tie-break; the service does not
	// guarantee ordering among equal scores
	sort.SliceStable(resp.Matches, func(i, j int) bool {
		if resp.Matches[i].Score != resp.Matches[j].Score {
			return resp.Matches[i].Score > resp.Matches[j].Score
		}
		return resp.Matches[i].Metadata["seq"] < resp.Matches[j].Metadata["seq"]
	})

	out := make([]models.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, models.Match{
			Text:      m.Metadata["text"],
			Score:     m.Score,
			SourceURL: m.Metadata["source_url"],
			Entity:    m.Metadata["entity"],
		})
	}
	return out, nil
}

func (s *Store) DeleteNamespace(ctx context.Context, id string) error {
	payload := map[string]any{"deleteAll": true, "namespace": id}
	return s.post(ctx, "/vectors/delete", payload, &struct{}{})
}

func (s *Store) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pinecone marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", s.indexHost+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("pinecone request: %w", err)
	}
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pinecone %s returned status %d: %s", path, resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
