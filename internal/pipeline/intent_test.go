package pipeline

import (
	"context"
	"errors"
	"testing"

	provmodels "github.com/compintel/cibot/provider/models"
)

type stubExtractorLLM struct {
	ext   provmodels.Extraction
	err   error
	calls int
}

func (s *stubExtractorLLM) ExtractEntities(ctx context.Context, prompt string) (provmodels.Extraction, error) {
	s.calls++
	return s.ext, s.err
}

func (s *stubExtractorLLM) GenerateComparison(ctx context.Context, prompt, entityA, entityB string, chunks []provmodels.ContextChunk) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubExtractorLLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestExtractRejectsEmptyPromptWithoutCallingProvider(t *testing.T) {
	llm := &stubExtractorLLM{}
	x := NewIntentExtractor(llm)

	_, err := x.Extract(context.Background(), "   \t\n")
	if !errors.Is(err, ErrMalformedPrompt) {
		t.Fatalf("expected ErrMalformedPrompt, got %v", err)
	}
	if llm.calls != 0 {
		t.Fatalf("empty prompt must not reach the provider, got %d calls", llm.calls)
	}
}

func TestExtractValidatesEntities(t *testing.T) {
	cases := []struct {
		name string
		ext  provmodels.Extraction
		want error
	}{
		{"both empty", provmodels.Extraction{}, ErrMalformedPrompt},
		{"one empty", provmodels.Extraction{EntityA: "Stripe"}, ErrAmbiguousIntent},
		{"whitespace entity", provmodels.Extraction{EntityA: "Stripe", EntityB: "  "}, ErrAmbiguousIntent},
		{"same entity", provmodels.Extraction{EntityA: "Stripe", EntityB: "stripe"}, ErrAmbiguousIntent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x := NewIntentExtractor(&stubExtractorLLM{ext: tc.ext})
			_, err := x.Extract(context.Background(), "compare things")
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestExtractFillsSearchQueryFallbacks(t *testing.T) {
	x := NewIntentExtractor(&stubExtractorLLM{ext: provmodels.Extraction{
		EntityA:      "Stripe",
		EntityB:      "Square",
		SearchQueryA: "Stripe payment fees pricing",
	}})

	ext, err := x.Extract(context.Background(), "compare Stripe vs Square fees")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ext.SearchQueryA != "Stripe payment fees pricing" {
		t.Fatalf("provided search query overwritten: %q", ext.SearchQueryA)
	}
	if ext.SearchQueryB != "Square" {
		t.Fatalf("missing search query must fall back to the entity name, got %q", ext.SearchQueryB)
	}
}

func TestExtractWrapsProviderError(t *testing.T) {
	provErr := errors.New("upstream unavailable")
	x := NewIntentExtractor(&stubExtractorLLM{err: provErr})

	_, err := x.Extract(context.Background(), "compare Stripe vs Square")
	if !errors.Is(err, provErr) {
		t.Fatalf("provider error not preserved: %v", err)
	}
	if errors.Is(err, ErrMalformedPrompt) || errors.Is(err, ErrAmbiguousIntent) {
		t.Fatalf("provider failure misclassified as an input error: %v", err)
	}
}
