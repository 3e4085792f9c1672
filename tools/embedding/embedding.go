package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/compintel/cibot/provider"
)

// ErrEmbedding classifies failures of the embedding stage.
var ErrEmbedding = errors.New("embedding failed")

const defaultBatchSize = 64

// maxInputRunes caps a single input's length. Oversize inputs are
// truncated rather than failing the whole batch.
const maxInputRunes = 8000

// Embedding maps text segments to fixed-dimension dense vectors through
// the shared LLM provider. Stateless; safe for concurrent use.
type Embedding struct {
	provider  provider.Provider
	dimension int
	batchSize int
}

func NewEmbedding(p provider.Provider, dimension int) *Embedding {
	return &Embedding{provider: p, dimension: dimension, batchSize: defaultBatchSize}
}

// Dimension is fixed for the lifetime of the process and must match the
// vector-index configuration.
func (e *Embedding) Dimension() int { return e.dimension }

// EmbedMany returns vectors in 1:1 order correspondence with texts.
func (e *Embedding) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			batch[i] = truncate(t)
		}
		vecs, err := e.provider.CreateEmbedding(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbedding, len(vecs), end-start)
		}
		for _, v := range vecs {
			if len(v) != e.dimension {
				return nil, fmt.Errorf("%w: vector dimension %d, want %d", ErrEmbedding, len(v), e.dimension)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxInputRunes {
		return s
	}
	return string(runes[:maxInputRunes])
}
