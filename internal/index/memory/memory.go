package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/compintel/cibot/internal/index/models"
)

// Store is an in-process vector store with brute-force cosine scan.
// Default backend for local runs and tests.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string][]models.Record
}

func NewStore() *Store {
	return &Store{namespaces: make(map[string][]models.Record)}
}

func (s *Store) CreateNamespace(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[id]; !ok {
		s.namespaces[id] = nil
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, namespaceID string, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.namespaces[namespaceID]
	if !ok {
		return fmt.Errorf("unknown namespace: %s", namespaceID)
	}
	for _, r := range records {
		replaced := false
		for i := range existing {
			if existing[i].ID == r.ID {
				existing[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, r)
		}
	}
	s.namespaces[namespaceID] = existing
	return nil
}

func (s *Store) Query(ctx context.Context, namespaceID string, vector []float32, topK int) ([]models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.namespaces[namespaceID]
	if !ok {
		return nil, fmt.Errorf("unknown namespace: %s", namespaceID)
	}

	type scored struct {
		rec   models.Record
		score float32
	}
	scores := make([]scored, 0, len(records))
	for _, r := range records {
		scores = append(scores, scored{rec: r, score: cosine(r.Vector, vector)})
	}
	// descending score, earlier-inserted wins ties
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].rec.Seq < scores[j].rec.Seq
	})

	if topK > len(scores) {
		topK = len(scores)
	}
	out := make([]models.Match, 0, topK)
	for _, s := range scores[:topK] {
		out = append(out, models.Match{
			Text:      s.rec.Text,
			Score:     s.score,
			SourceURL: s.rec.SourceURL,
			Entity:    s.rec.Entity,
		})
	}
	return out, nil
}

func (s *Store) DeleteNamespace(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, id)
	return nil
}

// Len reports the number of live namespaces. Used by the leak-detection
// tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces)
}

func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
