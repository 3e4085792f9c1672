package index

import (
	"context"
	"errors"
	"testing"

	"github.com/compintel/cibot/internal/index/memory"
	"github.com/compintel/cibot/internal/index/models"
	"github.com/compintel/cibot/tools/chunk"
)

type countingStore struct {
	inner   VectorStore
	creates int
	upserts int
	queries int
	deletes int
	failNext error
}

func newCountingStore() *countingStore {
	return &countingStore{inner: memory.NewStore()}
}

func (c *countingStore) CreateNamespace(ctx context.Context, id string) error {
	c.creates++
	return c.inner.CreateNamespace(ctx, id)
}

func (c *countingStore) Upsert(ctx context.Context, namespaceID string, records []models.Record) error {
	c.upserts++
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return err
	}
	return c.inner.Upsert(ctx, namespaceID, records)
}

func (c *countingStore) Query(ctx context.Context, namespaceID string, vector []float32, topK int) ([]models.Match, error) {
	c.queries++
	return c.inner.Query(ctx, namespaceID, vector, topK)
}

func (c *countingStore) DeleteNamespace(ctx context.Context, id string) error {
	c.deletes++
	return c.inner.DeleteNamespace(ctx, id)
}

func someChunks(n int) []chunk.Chunk {
	out := make([]chunk.Chunk, n)
	for i := range out {
		out[i] = chunk.Chunk{
			Text:      "chunk text",
			SourceURL: "https://example.com",
			Entity:    "Example",
			Embedding: []float32{1, 0, 0},
		}
	}
	return out
}

func TestEnsureIsIdempotent(t *testing.T) {
	store := newCountingStore()
	eph := NewEphemeral(store, "req-1")

	ns1, err := eph.Ensure(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ns2, err := eph.Ensure(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns1 != ns2 {
		t.Fatalf("ensure returned different handles")
	}
	if store.creates != 1 {
		t.Fatalf("expected one backend create, got %d", store.creates)
	}
	if eph.State() != StateActive {
		t.Fatalf("expected active state, got %d", eph.State())
	}
}

func TestUpsertRequiresActiveState(t *testing.T) {
	eph := NewEphemeral(newCountingStore(), "req-1")
	if err := eph.Upsert(context.Background(), someChunks(1)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before ensure, got %v", err)
	}
}

func TestOperationsAfterDestroyFail(t *testing.T) {
	eph := NewEphemeral(newCountingStore(), "req-1")
	if _, err := eph.Ensure(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eph.Destroy(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := eph.Upsert(context.Background(), someChunks(1)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on upsert after destroy, got %v", err)
	}
	if _, err := eph.Query(context.Background(), []float32{1, 0, 0}, 3); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on query after destroy, got %v", err)
	}
	if _, err := eph.Ensure(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on ensure after destroy, got %v", err)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	store := newCountingStore()
	eph := NewEphemeral(store, "req-1")
	if _, err := eph.Ensure(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := eph.Destroy(context.Background()); err != nil {
		t.Fatalf("first destroy failed: %v", err)
	}
	if err := eph.Destroy(context.Background()); err != nil {
		t.Fatalf("second destroy must be a no-op, got %v", err)
	}
	if store.deletes != 1 {
		t.Fatalf("expected exactly one backend delete, got %d", store.deletes)
	}
}

func TestDestroyWithoutEnsureSkipsBackend(t *testing.T) {
	store := newCountingStore()
	eph := NewEphemeral(store, "req-1")

	if err := eph.Destroy(context.Background()); err != nil {
		t.Fatalf("destroy of never-created namespace must be a no-op, got %v", err)
	}
	if store.deletes != 0 {
		t.Fatalf("backend delete must not run for a never-created namespace, got %d", store.deletes)
	}
	if eph.State() != StateDestroyed {
		t.Fatalf("expected destroyed state, got %d", eph.State())
	}
}

func TestReadAfterWrite(t *testing.T) {
	eph := NewEphemeral(newCountingStore(), "req-1")
	ctx := context.Background()
	ns, err := eph.Ensure(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks := []chunk.Chunk{
		{Text: "alpha", SourceURL: "https://a", Embedding: []float32{1, 0, 0}},
		{Text: "beta", SourceURL: "https://b", Embedding: []float32{0, 1, 0}},
	}
	if err := eph.Upsert(ctx, chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns.VectorCount != 2 {
		t.Fatalf("expected vector count 2, got %d", ns.VectorCount)
	}

	matches, err := eph.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 || matches[0].Text != "alpha" {
		t.Fatalf("just-upserted vectors not retrievable: %+v", matches)
	}
}

func TestUpsertAccumulatesAcrossCalls(t *testing.T) {
	eph := NewEphemeral(newCountingStore(), "req-1")
	ctx := context.Background()
	ns, _ := eph.Ensure(ctx)

	if err := eph.Upsert(ctx, someChunks(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eph.Upsert(ctx, someChunks(3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns.VectorCount != 5 {
		t.Fatalf("expected 5 accumulated vectors, got %d", ns.VectorCount)
	}

	matches, err := eph.Query(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 5 {
		t.Fatalf("expected 5 matches, got %d", len(matches))
	}
}

func TestFailedUpsertRetryDoesNotDuplicate(t *testing.T) {
	store := newCountingStore()
	eph := NewEphemeral(store, "req-1")
	ctx := context.Background()
	ns, _ := eph.Ensure(ctx)

	store.failNext = errors.New("transient write failure")
	if err := eph.Upsert(ctx, someChunks(2)); err == nil {
		t.Fatalf("expected upsert failure")
	}
	if ns.VectorCount != 0 {
		t.Fatalf("failed upsert must not count vectors, got %d", ns.VectorCount)
	}
	if err := eph.Upsert(ctx, someChunks(2)); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	matches, err := eph.Query(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("retried upsert duplicated records: %d matches", len(matches))
	}
}
