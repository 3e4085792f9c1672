package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/compintel/cibot/config"
	"github.com/compintel/cibot/internal/index"
	"github.com/compintel/cibot/internal/telemetry"
	"github.com/compintel/cibot/provider"
	provmodels "github.com/compintel/cibot/provider/models"
	"github.com/compintel/cibot/tools/acquire"
	"github.com/compintel/cibot/tools/chunk"
)

// Acquirer fetches normalized documents about one entity.
type Acquirer interface {
	Acquire(ctx context.Context, entity, searchQuery string, maxSources int) ([]acquire.Document, error)
}

// Embedder maps texts to fixed-dimension vectors.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Query is one in-flight comparison request. Immutable after intent
// extraction; nothing about it survives the request.
type Query struct {
	RawPrompt string
	EntityA   string
	EntityB   string
	RequestID string
}

// Result is what the caller gets back: the grounded answer plus the
// deduplicated source URLs of the retrieved context.
type Result struct {
	RequestID string
	EntityA   string
	EntityB   string
	Answer    string
	Sources   []string
}

// Orchestrator drives one comparison query end to end: intent, parallel
// acquisition, chunk/embed, ephemeral indexing, retrieval, generation,
// cleanup. The index namespace is acquired lazily and released on every
// exit path once created.
type Orchestrator struct {
	cfg        config.PipelineConfig
	maxSources int
	logger     *log.Logger
	telemetry  *telemetry.Telemetry

	llm      provider.Provider
	intent   *IntentExtractor
	acquirer Acquirer
	chunker  chunk.Chunker
	embedder Embedder
	store    index.VectorStore
	observer Observer
}

func NewOrchestrator(cfg config.PipelineConfig, maxSources int, logger *log.Logger, tele *telemetry.Telemetry, llm provider.Provider, acquirer Acquirer, embedder Embedder, store index.VectorStore) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		maxSources: maxSources,
		logger:     logger,
		telemetry:  tele,
		llm:        llm,
		intent:     NewIntentExtractor(llm),
		acquirer:   acquirer,
		chunker:    chunk.Chunker{MaxLen: cfg.MaxChunkLen, Overlap: cfg.ChunkOverlap, MinChars: cfg.MinChunkChars},
		embedder:   embedder,
		store:      store,
		observer:   noopObserver{},
	}
}

// SetObserver subscribes a progress observer. Must be called before Run.
func (o *Orchestrator) SetObserver(obs Observer) {
	if obs == nil {
		obs = noopObserver{}
	}
	o.observer = obs
}

// Run executes one comparison query. It returns the generated answer or
// the first unrecovered error from any step, after guaranteeing that any
// created namespace was destroyed.
func (o *Orchestrator) Run(ctx context.Context, rawPrompt string) (result *Result, err error) {
	requestID := uuid.NewString()
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		o.telemetry.RecordQuery(outcome)
		o.logger.Printf("request %s finished in %s (%s)", requestID, time.Since(start), outcome)
	}()

	// 1. intent — fail fast, nothing to clean up yet
	o.observer.OnStage(requestID, StageIntent, "extracting entities")
	t0 := time.Now()
	ext, err := o.intent.Extract(ctx, rawPrompt)
	o.telemetry.ObserveStage(string(StageIntent), time.Since(t0))
	if err != nil {
		return nil, err
	}
	query := Query{RawPrompt: rawPrompt, EntityA: ext.EntityA, EntityB: ext.EntityB, RequestID: requestID}
	o.observer.OnStage(requestID, StageIntent, fmt.Sprintf("%s vs %s", query.EntityA, query.EntityB))

	// 2. acquire both entities concurrently
	o.observer.OnStage(requestID, StageAcquire, "acquiring sources")
	t0 = time.Now()
	docs, err := o.acquireBoth(ctx, ext)
	o.telemetry.ObserveStage(string(StageAcquire), time.Since(t0))
	if err != nil {
		var acqErr *acquire.AcquisitionError
		if errors.As(err, &acqErr) {
			o.telemetry.RecordSources("failed", acqErr.Attempted)
		}
		return nil, err
	}
	o.telemetry.RecordSources("ok", len(docs))
	o.observer.OnStage(requestID, StageAcquire, fmt.Sprintf("%d documents", len(docs)))

	// 3. chunk and embed everything from both entities
	o.observer.OnStage(requestID, StageChunk, "chunking and embedding")
	t0 = time.Now()
	chunks, err := o.chunkAndEmbed(ctx, docs)
	o.telemetry.ObserveStage(string(StageChunk), time.Since(t0))
	if err != nil {
		return nil, err
	}

	// 4. ensure namespace and upsert; from here on cleanup must run on
	// every exit path
	o.observer.OnStage(requestID, StageUpsert, "indexing vectors")
	eph := index.NewEphemeral(o.store, requestID)
	ns, err := eph.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	o.telemetry.NamespaceCreated()
	defer func() {
		o.observer.OnStage(requestID, StageCleanup, "destroying namespace "+ns.ID)
		if derr := eph.Destroy(context.WithoutCancel(ctx)); derr != nil {
			o.logger.Printf("request %s: namespace cleanup failed: %v", requestID, derr)
		}
		o.telemetry.NamespaceDestroyed()
	}()

	t0 = time.Now()
	err = withRetry(ctx, o.logger, o.cfg.MaxRetries, o.cfg.RetryBackoff, "upsert", func() error {
		return eph.Upsert(ctx, chunks)
	})
	o.telemetry.ObserveStage(string(StageUpsert), time.Since(t0))
	if err != nil {
		return nil, err
	}
	o.observer.OnStage(requestID, StageUpsert, fmt.Sprintf("%d vectors in %s", ns.VectorCount, ns.ID))

	// 5. embed the original prompt and retrieve grounding context. All
	// upserts were acknowledged above, so read-after-write holds here.
	o.observer.OnStage(requestID, StageRetrieve, "querying index")
	t0 = time.Now()
	promptVecs, err := o.embedder.EmbedMany(ctx, []string{rawPrompt})
	if err != nil {
		return nil, err
	}
	matches, err := eph.Query(ctx, promptVecs[0], o.cfg.TopK)
	o.telemetry.ObserveStage(string(StageRetrieve), time.Since(t0))
	if err != nil {
		return nil, err
	}
	o.observer.OnStage(requestID, StageRetrieve, fmt.Sprintf("%d context chunks", len(matches)))

	// 6. grounded generation
	o.observer.OnStage(requestID, StageGenerate, "generating comparison")
	t0 = time.Now()
	var answer string
	err = withRetry(ctx, o.logger, o.cfg.MaxRetries, o.cfg.RetryBackoff, "generation", func() error {
		var gerr error
		answer, gerr = o.llm.GenerateComparison(ctx, rawPrompt, query.EntityA, query.EntityB, toContextChunks(matches))
		return gerr
	})
	o.telemetry.ObserveStage(string(StageGenerate), time.Since(t0))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	// 7. cleanup runs in the deferred release above
	return &Result{
		RequestID: requestID,
		EntityA:   query.EntityA,
		EntityB:   query.EntityB,
		Answer:    answer,
		Sources:   sourceURLs(matches),
	}, nil
}

// acquireBoth runs the two per-entity acquisitions concurrently. If one
// side fails entirely, the other side's in-flight work is abandoned
// through context cancellation and the query fails.
func (o *Orchestrator) acquireBoth(ctx context.Context, ext provmodels.Extraction) ([]acquire.Document, error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	sides := [2]struct{ entity, query string }{
		{ext.EntityA, ext.SearchQueryA},
		{ext.EntityB, ext.SearchQueryB},
	}
	var (
		wg   sync.WaitGroup
		docs [2][]acquire.Document
		errs [2]error
	)
	for i := range sides {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = withRetry(actx, o.logger, o.cfg.MaxRetries, o.cfg.RetryBackoff, "acquire "+sides[i].entity, func() error {
				d, err := o.acquirer.Acquire(actx, sides[i].entity, sides[i].query, o.maxSources)
				if err != nil {
					return err
				}
				docs[i] = d
				return nil
			})
			if errs[i] != nil {
				cancel()
			}
		}(i)
	}
	wg.Wait()

	// prefer the root cause over the cancellation it induced
	var firstErr error
	for _, e := range errs {
		if e == nil {
			continue
		}
		if firstErr == nil || errors.Is(firstErr, context.Canceled) {
			firstErr = e
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return append(docs[0], docs[1]...), nil
}

func (o *Orchestrator) chunkAndEmbed(ctx context.Context, docs []acquire.Document) ([]chunk.Chunk, error) {
	var all []chunk.Chunk
	for _, d := range docs {
		cs, err := o.chunker.Split(d)
		if err != nil {
			return nil, err
		}
		all = append(all, cs...)
	}
	if len(all) == 0 {
		return nil, ErrNoContent
	}

	texts := make([]string, len(all))
	for i, c := range all {
		texts[i] = c.Text
	}
	vecs, err := o.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range all {
		all[i].Embedding = vecs[i]
	}
	return all, nil
}

func toContextChunks(matches []index.Match) []provmodels.ContextChunk {
	out := make([]provmodels.ContextChunk, 0, len(matches))
	for _, m := range matches {
		out = append(out, provmodels.ContextChunk{
			Text:      m.Text,
			SourceURL: m.SourceURL,
			Entity:    m.Entity,
			Score:     m.Score,
		})
	}
	return out
}

func sourceURLs(matches []index.Match) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if m.SourceURL == "" || seen[m.SourceURL] {
			continue
		}
		seen[m.SourceURL] = true
		out = append(out, m.SourceURL)
	}
	return out
}
