// Package embedder provides rag.Embedder implementations. OpenAI, Azure
// OpenAI and Ollama are called over their REST APIs; Gemini goes through the
// genai SDK.
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultOpenAITimeout = 30 * time.Second
	// defaultOpenAIBatch stays well below the 2048-input API limit.
	defaultOpenAIBatch = 256
)

// OpenAIEmbedder implements rag.Embedder using the OpenAI or Azure OpenAI
// embeddings REST API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	url        string
	model      string
	dimensions int
	azure      bool
	batch      int
	rest       *restClient
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is sent as a Bearer token, or as the api-key header for Azure.
	APIKey string
	// Model is the embedding model name. For Azure it is the deployment name.
	Model string
	// Dimensions is the requested vector length (0 = model default).
	Dimensions int
	// Azure switches to deployment URLs and api-key authentication.
	Azure bool
	// APIVersion is the Azure api-version query parameter.
	APIVersion string
	// BatchSize caps inputs per request. Defaults to 256.
	BatchSize int
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	header := http.Header{}
	endpoint := base + "/embeddings"
	name := "openai embedder"
	if cfg.Azure {
		header.Set("api-key", cfg.APIKey)
		endpoint = base + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		name = "azure embedder"
	} else {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultOpenAIBatch
	}
	return &OpenAIEmbedder{
		url:        endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		batch:      batch,
		rest:       newRESTClient(name, defaultOpenAITimeout, header),
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ModelName returns "<backend>/<model>", with "@<dims>" when a dimension
// override is configured, since that changes the vector space.
func (e *OpenAIEmbedder) ModelName() string {
	prefix := "openai/"
	if e.azure {
		prefix = "azure/"
	}
	if e.dimensions > 0 {
		return fmt.Sprintf("%s%s@%d", prefix, e.model, e.dimensions)
	}
	return prefix + e.model
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return inBatches(ctx, texts, e.batch, e.embedBatch)
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	in := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	var result openaiEmbedResponse
	if err := e.rest.post(ctx, e.url, in, &result, openaiErrorMessage); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("%s: expected %d embeddings, got %d", e.rest.name, len(texts), len(result.Data))
	}

	// Entries carry their input position and may arrive in any order.
	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%s: index %d out of range [0, %d)", e.rest.name, d.Index, len(texts))
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("%s: missing embedding for input %d", e.rest.name, i)
		}
	}
	return out, nil
}

// openaiErrorMessage reads {"error": {"message": "..."}} from a failed response.
func openaiErrorMessage(body []byte) string {
	var r openaiEmbedResponse
	if json.Unmarshal(body, &r) != nil || r.Error == nil {
		return ""
	}
	return r.Error.Message
}
