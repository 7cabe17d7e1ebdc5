package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultGeminiBaseURL is the default Gemini REST API endpoint.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultGeminiModel is the default embedding model.
	DefaultGeminiModel = "text-embedding-004"
)

// GeminiConfig holds configuration for the Gemini embedder.
type GeminiConfig struct {
	// BaseURL is the Gemini API base URL.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the embedding model to use (default: text-embedding-004).
	Model string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// GeminiEmbedder implements the Embedder interface using the Gemini API.
type GeminiEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewGeminiEmbedder creates a new Gemini embedder with the given configuration.
func NewGeminiEmbedder(cfg GeminiConfig) *GeminiEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &GeminiEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		client:  client,
	}
}

type embedRequest struct {
	Content  embedContent `json:"content"`
	TaskType string       `json:"taskType,omitempty"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed generates an embedding vector for a single text input.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	reqBody := embedRequest{
		Content:  embedContent{Parts: []embedPart{{Text: text}}},
		TaskType: string(task),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embedResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned from Gemini")
	}

	return embedResp.Embedding.Values, nil
}

// ModelName returns the name of the embedding model being used.
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

// Ensure GeminiEmbedder implements Embedder interface.
var _ Embedder = (*GeminiEmbedder)(nil)
