package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/compintel/cibot/internal/index/models"
	"github.com/compintel/cibot/tools/chunk"
)

// Match re-exports the backend match type for call sites.
type Match = models.Match

// ErrInvalidState reports that a namespace was used out of lifecycle
// order. This is a defect in the caller, never retried.
var ErrInvalidState = errors.New("index namespace used out of lifecycle order")

// VectorStore is the backend boundary: a vector index with opaque
// per-request namespaces. Implementations live in the subpackages.
type VectorStore interface {
	CreateNamespace(ctx context.Context, id string) error
	Upsert(ctx context.Context, namespaceID string, records []models.Record) error
	Query(ctx context.Context, namespaceID string, vector []float32, topK int) ([]models.Match, error)
	DeleteNamespace(ctx context.Context, id string) error
}

// State is the lifecycle position of an ephemeral namespace.
type State int

const (
	StateUncreated State = iota
	StateActive
	StateDestroyed
)

// Namespace is the handle for one request-scoped index namespace.
type Namespace struct {
	ID          string
	VectorCount int
	CreatedAt   time.Time
}

// Ephemeral owns the create/upsert/query/destroy lifecycle of exactly one
// namespace, scoped to a single request. The namespace is created lazily
// by Ensure and must be released by Destroy on every exit path; Destroy
// is idempotent so cleanup handlers can call it unconditionally.
type Ephemeral struct {
	store VectorStore

	mu    sync.Mutex
	state State
	ns    *Namespace
	seq   int
}

// NewEphemeral binds a not-yet-created namespace for the given request.
func NewEphemeral(store VectorStore, requestID string) *Ephemeral {
	return &Ephemeral{
		store: store,
		ns:    &Namespace{ID: "q-" + requestID},
	}
}

// Ensure creates the namespace on first call and returns the existing
// handle on subsequent calls. Fails after Destroy.
func (e *Ephemeral) Ensure(ctx context.Context) (*Namespace, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateActive:
		return e.ns, nil
	case StateDestroyed:
		return nil, fmt.Errorf("ensure after destroy: %w", ErrInvalidState)
	}

	if err := e.store.CreateNamespace(ctx, e.ns.ID); err != nil {
		return nil, fmt.Errorf("create namespace %s: %w", e.ns.ID, err)
	}
	e.ns.CreatedAt = time.Now()
	e.state = StateActive
	return e.ns, nil
}

// Upsert appends chunk vectors to the active namespace. It may be called
// multiple times before the first query; vectors accumulate.
func (e *Ephemeral) Upsert(ctx context.Context, chunks []chunk.Chunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return fmt.Errorf("upsert in state %d: %w", e.state, ErrInvalidState)
	}

	// record IDs derive from the pre-call sequence so a retried upsert
	// rewrites the same records instead of duplicating them
	records := make([]models.Record, 0, len(chunks))
	for i, c := range chunks {
		seq := e.seq + i
		records = append(records, models.Record{
			ID:        fmt.Sprintf("chunk-%04d", seq),
			Seq:       seq,
			Vector:    c.Embedding,
			Text:      c.Text,
			SourceURL: c.SourceURL,
			Entity:    c.Entity,
			Section:   c.Section,
			Category:  c.Category,
		})
	}
	if err := e.store.Upsert(ctx, e.ns.ID, records); err != nil {
		return fmt.Errorf("upsert %d vectors into %s: %w", len(records), e.ns.ID, err)
	}
	e.seq += len(records)
	e.ns.VectorCount = e.seq
	return nil
}

// Query returns the topK nearest neighbors of vector by cosine
// similarity, ties broken by insertion order.
func (e *Ephemeral) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return nil, fmt.Errorf("query in state %d: %w", e.state, ErrInvalidState)
	}
	matches, err := e.store.Query(ctx, e.ns.ID, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query namespace %s: %w", e.ns.ID, err)
	}
	return matches, nil
}

// Destroy releases the namespace. Idempotent: destroying an already
// destroyed or never-created namespace is a no-op, so it is safe to call
// from any failure handler.
func (e *Ephemeral) Destroy(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		e.state = StateDestroyed
		return nil
	}
	e.state = StateDestroyed
	if err := e.store.DeleteNamespace(ctx, e.ns.ID); err != nil {
		return fmt.Errorf("delete namespace %s: %w", e.ns.ID, err)
	}
	return nil
}

// State reports the current lifecycle position.
func (e *Ephemeral) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
