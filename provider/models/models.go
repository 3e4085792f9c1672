package models

import (
	"fmt"
	"net/http"
)

// Extraction is the structured output of entity extraction: the two
// subjects of a comparison prompt plus search-optimized query strings for
// discovering authoritative sources about each.
type Extraction struct {
	EntityA      string `json:"entity_a"`
	EntityB      string `json:"entity_b"`
	SearchQueryA string `json:"search_query_a"`
	SearchQueryB string `json:"search_query_b"`
}

// ContextChunk is one retrieved piece of grounding context handed to
// comparison generation.
type ContextChunk struct {
	Text      string
	SourceURL string
	Entity    string
	Score     float32
}

// APIError is a non-2xx response from a provider endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API returned status %d: %s", e.Status, e.Body)
}

// Temporary reports whether a retry could plausibly succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}
