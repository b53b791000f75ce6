package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	defaultOllamaTimeout = 60 * time.Second
	// defaultOllamaBatch keeps a single /api/embed call short on CPU hosts.
	defaultOllamaBatch = 64
)

// OllamaEmbedder implements rag.Embedder using the Ollama /api/embed endpoint.
// No API key is required. It is safe for concurrent use.
type OllamaEmbedder struct {
	url   string
	model string
	batch int
	rest  *restClient
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
	// Timeout bounds each HTTP request. Defaults to 60s.
	Timeout time.Duration
	// BatchSize caps inputs per request. Defaults to 64.
	BatchSize int
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultOllamaBatch
	}
	return &OllamaEmbedder{
		url:   strings.TrimRight(cfg.Host, "/") + "/api/embed",
		model: cfg.Model,
		batch: batch,
		rest:  newRESTClient("ollama embedder", timeout, nil),
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// ModelName returns "ollama/<model>". The prefix keeps the same model name
// served by two backends from comparing equal.
func (e *OllamaEmbedder) ModelName() string { return "ollama/" + e.model }

// Embed returns one vector per input text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return inBatches(ctx, texts, e.batch, e.embedBatch)
}

func (e *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result ollamaEmbedResponse
	err := e.rest.post(ctx, e.url, ollamaEmbedRequest{Model: e.model, Input: texts}, &result, ollamaErrorMessage)
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}

// ollamaErrorMessage reads {"error": "..."} from a failed response.
func ollamaErrorMessage(body []byte) string {
	var r ollamaEmbedResponse
	if json.Unmarshal(body, &r) != nil {
		return ""
	}
	return r.Error
}
