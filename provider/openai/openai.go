package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/compintel/cibot/provider/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

// client implements the Provider interface using an OpenAI-compatible API
type client struct {
	apiKey          string
	baseURL         string
	completionModel string
	embeddingModel  string
	dimension       int
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// request represents a chat completion request
type request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// response represents a chat completion response
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI-compatible client
func NewOpenAIClient(apiKey, baseURL, completionModel, embeddingModel string, dimension int, temperature float64, maxTokens int, timeout time.Duration) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		completionModel: completionModel,
		embeddingModel:  embeddingModel,
		dimension:       dimension,
		temperature:     temperature,
		maxTokens:       maxTokens,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

const extractSystemPrompt = `You are a keyword extraction specialist. Given a user's comparison query,
extract the two companies or products being compared. Also return search-optimized keywords that
would find the official website or product page for each when searched on the web.

For example:
- "difference between google pixel and samsung s series" -> entity_a: "Google Pixel", entity_b: "Samsung Galaxy S series"
- "how does stripe compare to square" -> entity_a: "Stripe", entity_b: "Square"

You MUST respond with a valid JSON object in exactly this format:
{"entity_a": "first entity", "entity_b": "second entity", "search_query_a": "search keyword for first entity", "search_query_b": "search keyword for second entity"}
Do not include any other text or explanation.`

// ExtractEntities parses a comparison prompt via JSON-mode completion.
// Temperature is pinned to zero so a fixed prompt extracts the same pair.
func (c *client) ExtractEntities(ctx context.Context, prompt string) (models.Extraction, error) {
	messages := []Message{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: prompt},
	}

	responseStr, err := c.sendRequest(ctx, messages, 0, &responseFormat{Type: "json_object"})
	if err != nil {
		return models.Extraction{}, err
	}

	var out models.Extraction
	if err := json.Unmarshal([]byte(responseStr), &out); err != nil {
		return models.Extraction{}, fmt.Errorf("failed to parse extraction: %w", err)
	}
	return out, nil
}

// GenerateComparison builds the two-sided grounded prompt and runs a
// single completion. No internal retry; the caller owns retry policy.
func (c *client) GenerateComparison(ctx context.Context, prompt, entityA, entityB string, chunks []models.ContextChunk) (string, error) {
	var sideA, sideB []string
	for _, ch := range chunks {
		line := ch.Text
		if ch.SourceURL != "" {
			line = fmt.Sprintf("%s\n(source: %s)", ch.Text, ch.SourceURL)
		}
		if strings.EqualFold(ch.Entity, entityB) {
			sideB = append(sideB, line)
		} else {
			sideA = append(sideA, line)
		}
	}
	contextA := "No data found"
	if len(sideA) > 0 {
		contextA = strings.Join(sideA, "\n\n")
	}
	contextB := "No data found"
	if len(sideB) > 0 {
		contextB = strings.Join(sideB, "\n\n")
	}

	userPrompt := fmt.Sprintf(`Based on the following context from two companies, answer the comparison question.
Provide a structured comparison highlighting key differences and similarities.
Include source URLs when available.

=== %s Context ===
%s

=== %s Context ===
%s

Question: %s

Provide a clear, structured comparison:`, entityA, contextA, entityB, contextB, prompt)

	messages := []Message{
		{Role: "system", Content: "You are a competitive intelligence analyst. Provide clear, factual comparisons based on the provided context. Structure your response with clear sections."},
		{Role: "user", Content: userPrompt},
	}

	return c.sendRequest(ctx, messages, c.temperature, nil)
}

// CreateEmbedding generates embeddings for the given texts
func (c *client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	requestBody := map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	}
	if c.dimension > 0 {
		requestBody["dimensions"] = c.dimension
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &models.APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var openaiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(openaiResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d inputs", len(openaiResp.Data), len(texts))
	}

	vecs := make([][]float32, len(openaiResp.Data))
	for _, d := range openaiResp.Data {
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// sendRequest sends a chat completion request
func (c *client) sendRequest(ctx context.Context, messages []Message, temperature float64, format *responseFormat) (string, error) {
	requestBody := request{
		Model:          c.completionModel,
		Messages:       messages,
		Temperature:    temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: format,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &models.APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var openaiResp response
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return openaiResp.Choices[0].Message.Content, nil
}
