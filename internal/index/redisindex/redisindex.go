package redisindex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/compintel/cibot/internal/index/models"
)

// Store keeps namespace vectors in Redis hashes. Similarity is computed
// client-side; Redis only provides shared storage so several pipeline
// processes can point at one index. The TTL is a safety net against
// leaked namespaces from crashed processes; normal operation deletes
// namespaces explicitly.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(addr, password string, db int, ttl time.Duration) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{client: rdb, ttl: ttl}
}

func nsKey(id string) string   { return fmt.Sprintf("idx:%s:records", id) }
func metaKey(id string) string { return fmt.Sprintf("idx:%s:meta", id) }

func (s *Store) CreateNamespace(ctx context.Context, id string) error {
	if err := s.client.Set(ctx, metaKey(id), time.Now().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis create namespace: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, namespaceID string, records []models.Record) error {
	exists, err := s.client.Exists(ctx, metaKey(namespaceID)).Result()
	if err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("unknown namespace: %s", namespaceID)
	}

	if len(records) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("redis upsert marshal: %w", err)
		}
		fields[r.ID] = data
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, nsKey(namespaceID), fields)
	pipe.Expire(ctx, nsKey(namespaceID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, namespaceID string, vector []float32, topK int) ([]models.Match, error) {
	exists, err := s.client.Exists(ctx, metaKey(namespaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("unknown namespace: %s", namespaceID)
	}

	raw, err := s.client.HGetAll(ctx, nsKey(namespaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query: %w", err)
	}

	type scored struct {
		rec   models.Record
		score float32
	}
	scores := make([]scored, 0, len(raw))
	for _, data := range raw {
		var r models.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("redis query unmarshal: %w", err)
		}
		scores = append(scores, scored{rec: r, score: cosine(r.Vector, vector)})
	}
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
	for _, sc := range scores[:topK] {
		out = append(out, models.Match{
			Text:      sc.rec.Text,
			Score:     sc.score,
			SourceURL: sc.rec.SourceURL,
			Entity:    sc.rec.Entity,
		})
	}
	return out, nil
}

func (s *Store) DeleteNamespace(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, nsKey(id), metaKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete namespace: %w", err)
	}
	return nil
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
