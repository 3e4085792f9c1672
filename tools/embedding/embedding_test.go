package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	provmodels "github.com/compintel/cibot/provider/models"
)

type fakeProvider struct {
	dimension int
	err       error
	calls     int
}

func (f *fakeProvider) ExtractEntities(ctx context.Context, prompt string) (provmodels.Extraction, error) {
	return provmodels.Extraction{}, errors.New("not implemented")
}

func (f *fakeProvider) GenerateComparison(ctx context.Context, prompt, a, b string, chunks []provmodels.ContextChunk) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeProvider) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dimension)
		vec[0] = float32(len(text)) // order marker
		out[i] = vec
	}
	return out, nil
}

func TestEmbedManyOrderCorrespondence(t *testing.T) {
	p := &fakeProvider{dimension: 4}
	e := NewEmbedding(p, 4)

	texts := []string{"a", "bb", "ccc", "dddd"}
	vecs, err := e.EmbedMany(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(len(texts[i])) {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
}

func TestEmbedManyEmptyInput(t *testing.T) {
	e := NewEmbedding(&fakeProvider{dimension: 4}, 4)
	vecs, err := e.EmbedMany(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", vecs, err)
	}
}

func TestEmbedManyBatches(t *testing.T) {
	p := &fakeProvider{dimension: 2}
	e := NewEmbedding(p, 2)
	e.batchSize = 3

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	vecs, err := e.EmbedMany(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 8 {
		t.Fatalf("expected 8 vectors, got %d", len(vecs))
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 batch calls, got %d", p.calls)
	}
}

func TestEmbedManyClassifiesFailures(t *testing.T) {
	p := &fakeProvider{dimension: 4, err: errors.New("model overloaded")}
	e := NewEmbedding(p, 4)

	_, err := e.EmbedMany(context.Background(), []string{"x"})
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestEmbedManyDimensionMismatch(t *testing.T) {
	p := &fakeProvider{dimension: 4}
	e := NewEmbedding(p, 8)

	_, err := e.EmbedMany(context.Background(), []string{"x"})
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding on dimension mismatch, got %v", err)
	}
}

func TestEmbedManyTruncatesOversizeInput(t *testing.T) {
	p := &fakeProvider{dimension: 2}
	e := NewEmbedding(p, 2)

	long := strings.Repeat("x", maxInputRunes+500)
	vecs, err := e.EmbedMany(context.Background(), []string{long, "short"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs[0][0] != float32(maxInputRunes) {
		t.Fatalf("oversize input not truncated: provider saw %v runes", vecs[0][0])
	}
	if vecs[1][0] != float32(len("short")) {
		t.Fatalf("short input altered: %v", vecs[1][0])
	}
}
