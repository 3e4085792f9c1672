package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/compintel/cibot/provider"
	provmodels "github.com/compintel/cibot/provider/models"
)

// IntentExtractor parses a free-form comparison prompt into exactly two
// subject entities. No side effects; deterministic for a fixed prompt
// (extraction runs at temperature zero).
type IntentExtractor struct {
	llm provider.Provider
}

func NewIntentExtractor(llm provider.Provider) *IntentExtractor {
	return &IntentExtractor{llm: llm}
}

// Extract validates the prompt shape and returns the two entities with
// their search queries.
func (x *IntentExtractor) Extract(ctx context.Context, prompt string) (provmodels.Extraction, error) {
	if strings.TrimSpace(prompt) == "" {
		return provmodels.Extraction{}, ErrMalformedPrompt
	}

	ext, err := x.llm.ExtractEntities(ctx, prompt)
	if err != nil {
		return provmodels.Extraction{}, fmt.Errorf("entity extraction: %w", err)
	}

	ext.EntityA = strings.TrimSpace(ext.EntityA)
	ext.EntityB = strings.TrimSpace(ext.EntityB)
	switch {
	case ext.EntityA == "" && ext.EntityB == "":
		return provmodels.Extraction{}, ErrMalformedPrompt
	case ext.EntityA == "" || ext.EntityB == "":
		return provmodels.Extraction{}, ErrAmbiguousIntent
	case strings.EqualFold(ext.EntityA, ext.EntityB):
		return provmodels.Extraction{}, ErrAmbiguousIntent
	}
	if ext.SearchQueryA == "" {
		ext.SearchQueryA = ext.EntityA
	}
	if ext.SearchQueryB == "" {
		ext.SearchQueryB = ext.EntityB
	}
	return ext, nil
}
