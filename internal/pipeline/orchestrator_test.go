package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/compintel/cibot/config"
	"github.com/compintel/cibot/internal/index"
	"github.com/compintel/cibot/internal/index/memory"
	"github.com/compintel/cibot/internal/index/models"
	"github.com/compintel/cibot/internal/telemetry"
	provmodels "github.com/compintel/cibot/provider/models"
	"github.com/compintel/cibot/tools/acquire"
)

// fakeLLM scripts the provider: fixed extraction, a queue of generation
// outcomes, and call counting for retry assertions.
type fakeLLM struct {
	mu       sync.Mutex
	ext      provmodels.Extraction
	answer   string
	genErrs  []error
	genCalls int
}

func (f *fakeLLM) ExtractEntities(ctx context.Context, prompt string) (provmodels.Extraction, error) {
	return f.ext, nil
}

func (f *fakeLLM) GenerateComparison(ctx context.Context, prompt, entityA, entityB string, chunks []provmodels.ContextChunk) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls++
	if len(f.genErrs) > 0 {
		err := f.genErrs[0]
		f.genErrs = f.genErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.answer, nil
}

func (f *fakeLLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("orchestrator must embed through the Embedder, not the provider")
}

// fakeEmbedder derives a deterministic 3-dimensional vector from each
// text's length.
type fakeEmbedder struct{}

func (fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s)), 1, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 3 }

// fakeAcquirer serves canned documents per entity, with optional
// per-entity failures and a configurable delay for concurrency tests.
type fakeAcquirer struct {
	mu    sync.Mutex
	docs  map[string][]acquire.Document
	errs  map[string]error
	delay time.Duration
	calls []string
}

func (f *fakeAcquirer) Acquire(ctx context.Context, entity, searchQuery string, maxSources int) ([]acquire.Document, error) {
	f.mu.Lock()
	f.calls = append(f.calls, entity)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[entity]; err != nil {
		return nil, err
	}
	return f.docs[entity], nil
}

// countingStore wraps the in-memory backend to observe lifecycle calls.
type countingStore struct {
	inner   index.VectorStore
	mu      sync.Mutex
	creates int
	deletes int
}

func (c *countingStore) CreateNamespace(ctx context.Context, id string) error {
	c.mu.Lock()
	c.creates++
	c.mu.Unlock()
	return c.inner.CreateNamespace(ctx, id)
}

func (c *countingStore) Upsert(ctx context.Context, namespaceID string, records []models.Record) error {
	return c.inner.Upsert(ctx, namespaceID, records)
}

func (c *countingStore) Query(ctx context.Context, namespaceID string, vector []float32, topK int) ([]models.Match, error) {
	return c.inner.Query(ctx, namespaceID, vector, topK)
}

func (c *countingStore) DeleteNamespace(ctx context.Context, id string) error {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	return c.inner.DeleteNamespace(ctx, id)
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxChunkLen:   400,
		ChunkOverlap:  40,
		MinChunkChars: 10,
		TopK:          3,
		MaxRetries:    2,
		RetryBackoff:  time.Millisecond,
	}
}

func feeDocs() map[string][]acquire.Document {
	return map[string][]acquire.Document{
		"Stripe": {
			{SourceURL: "https://stripe.example/pricing", Entity: "Stripe",
				Content: "Stripe charges 2.9 percent plus 30 cents per successful online card payment."},
			{SourceURL: "https://stripe.example/fees", Entity: "Stripe",
				Content: "Stripe has no monthly fee and bills invoicing as a separate add-on product."},
		},
		"Square": {
			{SourceURL: "https://square.example/pricing", Entity: "Square",
				Content: "Square charges 2.6 percent plus 10 cents for in-person card payments."},
			{SourceURL: "https://square.example/fees", Entity: "Square",
				Content: "Square includes a free point of sale app with no monthly subscription."},
		},
	}
}

type testRig struct {
	orch     *Orchestrator
	llm      *fakeLLM
	acquirer *fakeAcquirer
	store    *countingStore
	mem      *memory.Store
	tele     *telemetry.Telemetry
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	llm := &fakeLLM{
		ext: provmodels.Extraction{
			EntityA: "Stripe", EntityB: "Square",
			SearchQueryA: "Stripe fees", SearchQueryB: "Square fees",
		},
		answer: "Stripe and Square differ mainly on per-transaction fees.",
	}
	acq := &fakeAcquirer{docs: feeDocs()}
	mem := memory.NewStore()
	store := &countingStore{inner: mem}
	tele := telemetry.New(prometheus.NewRegistry())
	logger := log.New(io.Discard, "", 0)
	orch := NewOrchestrator(testPipelineConfig(), 3, logger, tele, llm, acq, fakeEmbedder{}, store)
	return &testRig{orch: orch, llm: llm, acquirer: acq, store: store, mem: mem, tele: tele}
}

func (r *testRig) assertNoLeak(t *testing.T) {
	t.Helper()
	if n := r.mem.Len(); n != 0 {
		t.Fatalf("%d namespaces still live after the request", n)
	}
	if live := testutil.ToFloat64(r.tele.LiveNamespaces); live != 0 {
		t.Fatalf("live-namespace gauge did not return to zero: %v", live)
	}
}

func TestRunComparesTwoEntities(t *testing.T) {
	rig := newTestRig(t)

	var (
		mu     sync.Mutex
		stages []Stage
	)
	rig.orch.SetObserver(ObserverFunc(func(requestID string, stage Stage, detail string) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	}))

	res, err := rig.orch.Run(context.Background(), "Compare Stripe vs Square for small business fees")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntityA != "Stripe" || res.EntityB != "Square" {
		t.Fatalf("wrong entities: %q vs %q", res.EntityA, res.EntityB)
	}
	if strings.TrimSpace(res.Answer) == "" {
		t.Fatalf("empty answer")
	}
	if res.RequestID == "" {
		t.Fatalf("missing request id")
	}
	if len(res.Sources) == 0 {
		t.Fatalf("answer carries no sources")
	}
	seen := make(map[string]bool)
	for _, s := range res.Sources {
		if seen[s] {
			t.Fatalf("duplicate source %q", s)
		}
		seen[s] = true
	}

	if rig.store.creates != 1 || rig.store.deletes != 1 {
		t.Fatalf("expected one create and one delete, got %d/%d", rig.store.creates, rig.store.deletes)
	}
	rig.assertNoLeak(t)

	var generateAt, cleanupAt = -1, -1
	for i, s := range stages {
		switch s {
		case StageGenerate:
			generateAt = i
		case StageCleanup:
			cleanupAt = i
		}
	}
	if generateAt == -1 || cleanupAt == -1 || cleanupAt < generateAt {
		t.Fatalf("cleanup must be observed after generation: %v", stages)
	}
}

func TestRunDestroysNamespaceWhenGenerationFails(t *testing.T) {
	rig := newTestRig(t)
	rig.llm.genErrs = []error{errors.New("model refused")}

	_, err := rig.orch.Run(context.Background(), "Compare Stripe vs Square")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if rig.llm.genCalls != 1 {
		t.Fatalf("non-temporary generation failure retried: %d calls", rig.llm.genCalls)
	}
	if rig.store.deletes != 1 {
		t.Fatalf("namespace not destroyed on generation failure: %d deletes", rig.store.deletes)
	}
	rig.assertNoLeak(t)
}

func TestRunRetriesTemporaryGenerationFailure(t *testing.T) {
	rig := newTestRig(t)
	rig.llm.genErrs = []error{&provmodels.APIError{Status: 503}, nil}

	res, err := rig.orch.Run(context.Background(), "Compare Stripe vs Square")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rig.llm.genCalls != 2 {
		t.Fatalf("expected generation retry, got %d calls", rig.llm.genCalls)
	}
	if res.Answer == "" {
		t.Fatalf("empty answer after successful retry")
	}
	rig.assertNoLeak(t)
}

func TestRunSkipsIndexWhenAcquisitionFails(t *testing.T) {
	rig := newTestRig(t)
	rig.acquirer.errs = map[string]error{
		"Square": &acquire.AcquisitionError{Entity: "Square", Attempted: 3},
	}

	_, err := rig.orch.Run(context.Background(), "Compare Stripe vs Square")
	if !errors.Is(err, acquire.ErrAcquisitionFailed) {
		t.Fatalf("expected acquisition failure, got %v", err)
	}
	if rig.store.creates != 0 || rig.store.deletes != 0 {
		t.Fatalf("no namespace should exist before indexing: %d creates, %d deletes",
			rig.store.creates, rig.store.deletes)
	}
	rig.assertNoLeak(t)
}

func TestRunRejectsEmptyPrompt(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.orch.Run(context.Background(), "   ")
	if !errors.Is(err, ErrMalformedPrompt) {
		t.Fatalf("expected ErrMalformedPrompt, got %v", err)
	}
	if rig.store.creates != 0 {
		t.Fatalf("malformed prompt must not create a namespace")
	}
}

func TestRunReportsAmbiguousIntent(t *testing.T) {
	rig := newTestRig(t)
	rig.llm.ext = provmodels.Extraction{EntityA: "Stripe", EntityB: "Stripe"}

	_, err := rig.orch.Run(context.Background(), "Tell me about Stripe and Stripe")
	if !errors.Is(err, ErrAmbiguousIntent) {
		t.Fatalf("expected ErrAmbiguousIntent, got %v", err)
	}
	if len(rig.acquirer.calls) != 0 {
		t.Fatalf("ambiguous intent must not start acquisition: %v", rig.acquirer.calls)
	}
}

func TestRunReportsNoContent(t *testing.T) {
	rig := newTestRig(t)
	rig.acquirer.docs = map[string][]acquire.Document{
		"Stripe": {{SourceURL: "https://stripe.example", Entity: "Stripe", Content: "tiny"}},
		"Square": {{SourceURL: "https://square.example", Entity: "Square", Content: ""}},
	}

	_, err := rig.orch.Run(context.Background(), "Compare Stripe vs Square")
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
	if rig.store.creates != 0 {
		t.Fatalf("empty content must not create a namespace")
	}
}

func TestRunAcquiresEntitiesConcurrently(t *testing.T) {
	rig := newTestRig(t)
	rig.acquirer.delay = 200 * time.Millisecond

	start := time.Now()
	if _, err := rig.orch.Run(context.Background(), "Compare Stripe vs Square"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed >= 380*time.Millisecond {
		t.Fatalf("acquisition appears sequential: took %s for two 200ms sides", elapsed)
	}
	if len(rig.acquirer.calls) != 2 {
		t.Fatalf("expected both entities acquired, got %v", rig.acquirer.calls)
	}
	rig.assertNoLeak(t)
}

func TestRunLimitsRetrievalToTopK(t *testing.T) {
	rig := newTestRig(t)

	res, err := rig.orch.Run(context.Background(), "Compare Stripe vs Square")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// four documents produce four chunks; topK is 3, so at most three
	// distinct sources can back the answer
	if len(res.Sources) > 3 {
		t.Fatalf("retrieval exceeded topK: %d sources", len(res.Sources))
	}
}
