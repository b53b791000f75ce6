package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default embedding models and their output sizes per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	defaultOllamaDimensions = 768
	defaultOpenAIDimensions = 1536
	defaultGeminiDimensions = 768

	defaultOllamaHost      = "http://localhost:11434"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultAzureAPIVersion = "2025-04-01-preview"
)

// backends lists the accepted EMBEDDING_PROVIDER values.
const backends = "ollama, openai, azure, gemini"

// Backend returns the effective embedding backend: EMBEDDING_PROVIDER, then
// MODEL_PROVIDER, then "ollama". The ark chat backend has no embedding
// counterpart and falls back to ollama.
func Backend() string {
	if b := os.Getenv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	b := getEnvOrDefault("MODEL_PROVIDER", "ollama")
	if b == "ark" {
		return "ollama"
	}
	return b
}

// DefaultDimensions returns the vector size the given backend produces with
// its default model. EMBEDDING_DIMENSIONS takes precedence when set. The
// Qdrant mirror sizes its collection from this.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// envSettings is the embedding configuration read from the environment.
// Empty fields fall back to the chat provider's variables.
type envSettings struct {
	model      string
	apiKey     string
	endpoint   string
	dimensions int
	batch      int
}

func readEnv() envSettings {
	return envSettings{
		model:      os.Getenv("EMBEDDING_MODEL"),
		apiKey:     os.Getenv("EMBEDDING_API_KEY"),
		endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		batch:      getEnvInt("EMBEDDING_BATCH_SIZE", 0),
	}
}

// NewFromEnv builds the embedder for Backend(). Credentials and endpoints are
// inherited from the chat provider variables unless the EMBEDDING_* overrides
// are set:
//
//	EMBEDDING_MODEL       model name (default per backend)
//	EMBEDDING_API_KEY     overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY / GOOGLE_API_KEY
//	EMBEDDING_ENDPOINT    overrides OLLAMA_HOST / AZURE_OPENAI_ENDPOINT / the OpenAI base URL
//	EMBEDDING_DIMENSIONS  requested output size (openai, azure, gemini)
//	EMBEDDING_BATCH_SIZE  inputs per request (ollama, openai, azure)
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	env := readEnv()
	switch backend := Backend(); backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:      firstNonEmpty(env.endpoint, os.Getenv("OLLAMA_HOST"), defaultOllamaHost),
			Model:     firstNonEmpty(env.model, defaultOllamaModel),
			BatchSize: env.batch,
		}), nil

	case "openai":
		key := firstNonEmpty(env.apiKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    firstNonEmpty(env.endpoint, defaultOpenAIBaseURL),
			APIKey:     key,
			Model:      firstNonEmpty(env.model, defaultOpenAIModel),
			Dimensions: env.dimensions,
			BatchSize:  env.batch,
		}), nil

	case "azure":
		key := firstNonEmpty(env.apiKey, os.Getenv("AZURE_OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstNonEmpty(env.endpoint, os.Getenv("AZURE_OPENAI_ENDPOINT"))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     key,
			Model:      firstNonEmpty(env.model, defaultOpenAIModel),
			Dimensions: env.dimensions,
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion),
			BatchSize:  env.batch,
		}), nil

	case "gemini":
		key := firstNonEmpty(env.apiKey, os.Getenv("GOOGLE_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     key,
			Model:      firstNonEmpty(env.model, defaultGeminiModel),
			Dimensions: env.dimensions,
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q: valid values: %s", backend, backends)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback when it is unset
// or not a number.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
