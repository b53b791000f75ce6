package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Ollama
// ---------------------------------------------------------------------------

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	var gotReq ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{1, 0}, {0, 1}},
		})
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	got, err := emb.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[1][1] != 1 {
		t.Errorf("unexpected embeddings %v", got)
	}
	if gotReq.Model != "nomic-embed-text" || len(gotReq.Input) != 2 {
		t.Errorf("unexpected request %+v", gotReq)
	}
	if emb.ModelName() != "ollama/nomic-embed-text" {
		t.Errorf("ModelName() = %q", emb.ModelName())
	}
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error with message", http.StatusNotFound, `{"error":"model not found"}`, "model not found"},
		{"server error without json", http.StatusBadGateway, `upstream down`, "HTTP 502"},
		{"count mismatch", http.StatusOK, `{"embeddings":[[1,2]]}`, "expected 2 embeddings"},
		{"bad json", http.StatusOK, `{`, "decode response"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			t.Cleanup(srv.Close)

			emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
			_, err := emb.Embed(context.Background(), []string{"a", "b"})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// OpenAI / Azure
// ---------------------------------------------------------------------------

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`)
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small"})
	got, err := emb.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Errorf("embeddings not reordered by index: %v", got)
	}
}

func TestOpenAIEmbedder_AzureRequestShape(t *testing.T) {
	t.Parallel()

	var gotReq openaiEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/embed-small/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "2025-04-01-preview" {
			t.Errorf("missing api-version, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("api-key") != "azure-key" {
			t.Errorf("missing api-key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = io.WriteString(w, `{"data":[{"index":0,"embedding":[0.5]}]}`)
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/openai",
		APIKey:     "azure-key",
		Model:      "embed-small",
		Dimensions: 256,
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})
	if _, err := emb.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotReq.Dimensions != 256 {
		t.Errorf("want dimensions 256 in request, got %d", gotReq.Dimensions)
	}
	if emb.ModelName() != "azure/embed-small@256" {
		t.Errorf("ModelName() = %q", emb.ModelName())
	}
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"invalid key"}}`, "invalid key"},
		{"index out of range", http.StatusOK, `{"data":[{"index":5,"embedding":[1]}]}`, "out of range"},
		{"duplicate index", http.StatusOK, `{"data":[{"index":0,"embedding":[1]},{"index":0,"embedding":[2]}]}`, "missing embedding for input 1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			t.Cleanup(srv.Close)

			emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
			texts := []string{"a"}
			if tc.name == "duplicate index" {
				texts = []string{"a", "b"}
			}
			_, err := emb.Embed(context.Background(), texts)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestInBatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		n         int
		size      int
		wantCalls int
	}{
		{"single call when under size", 3, 5, 1},
		{"exact multiple", 6, 3, 2},
		{"remainder batch", 7, 3, 3},
		{"zero size disables batching", 7, 0, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			texts := make([]string, tc.n)
			for i := range texts {
				texts[i] = strings.Repeat("x", i+1)
			}
			calls := 0
			got, err := inBatches(context.Background(), texts, tc.size, func(_ context.Context, batch []string) ([][]float32, error) {
				calls++
				out := make([][]float32, len(batch))
				for i, s := range batch {
					out[i] = []float32{float32(len(s))}
				}
				return out, nil
			})
			if err != nil {
				t.Fatalf("inBatches: %v", err)
			}
			if calls != tc.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tc.wantCalls)
			}
			for i, v := range got {
				if v[0] != float32(i+1) {
					t.Fatalf("vector %d out of order: %v", i, v)
				}
			}
		})
	}
}

func TestInBatches_ErrorNamesRange(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	_, err := inBatches(context.Background(), []string{"a", "b", "c", "d"}, 2, func(_ context.Context, batch []string) ([][]float32, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return make([][]float32, len(batch)), nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "inputs 2..3") {
		t.Errorf("error should name the failing range: %v", err)
	}
}

func TestOllamaEmbedder_Batches(t *testing.T) {
	t.Parallel()

	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		sizes = append(sizes, len(req.Input))
		resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{1}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "m", BatchSize: 2})
	got, err := emb.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("want 5 vectors, got %d", len(got))
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[2] != 1 {
		t.Errorf("unexpected batch sizes %v", sizes)
	}
}

// ---------------------------------------------------------------------------
// Gemini
// ---------------------------------------------------------------------------

// fakeModels is a test double for contentEmbedder.
type fakeModels struct {
	resp   *genai.EmbedContentResponse
	err    error
	model  string
	count  int
	config *genai.EmbedContentConfig
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.count = len(contents)
	f.config = config
	return f.resp, f.err
}

func TestGeminiEmbedder_Embed(t *testing.T) {
	t.Parallel()

	fm := &fakeModels{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{1, 2}}, {Values: []float32{3, 4}}},
	}}
	emb := &GeminiEmbedder{models: fm, model: "text-embedding-004", dimensions: 2}

	got, err := emb.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[1][0] != 3 {
		t.Errorf("unexpected embeddings %v", got)
	}
	if fm.model != "text-embedding-004" || fm.count != 2 {
		t.Errorf("unexpected call model=%q count=%d", fm.model, fm.count)
	}
	if fm.config == nil || fm.config.OutputDimensionality == nil || *fm.config.OutputDimensionality != 2 {
		t.Error("want OutputDimensionality=2 in config")
	}
	if emb.ModelName() != "gemini/text-embedding-004@2" {
		t.Errorf("ModelName() = %q", emb.ModelName())
	}
}

func TestGeminiEmbedder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fm      *fakeModels
		wantErr string
	}{
		{"api error", &fakeModels{err: errors.New("quota exceeded")}, "quota exceeded"},
		{"count mismatch", &fakeModels{resp: &genai.EmbedContentResponse{}}, "expected 1 embeddings"},
		{"nil embedding", &fakeModels{resp: &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{nil}}}, "missing embedding"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			emb := &GeminiEmbedder{models: tc.fm, model: "m"}
			_, err := emb.Embed(context.Background(), []string{"a"})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Factory and validation (t.Setenv: not parallel)
// ---------------------------------------------------------------------------

// clearEmbeddingEnv unsets every variable the factory reads.
func clearEmbeddingEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EMBEDDING_PROVIDER", "MODEL_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
		"EMBEDDING_ENDPOINT", "EMBEDDING_DIMENSIONS", "EMBEDDING_BATCH_SIZE", "OLLAMA_HOST", "OPENAI_API_KEY",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "GOOGLE_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestBackend_Resolution(t *testing.T) {
	tests := []struct {
		name      string
		embedding string
		model     string
		want      string
	}{
		{"default", "", "", "ollama"},
		{"inherits model provider", "", "openai", "openai"},
		{"explicit wins", "gemini", "openai", "gemini"},
		{"ark falls back to ollama", "", "ark", "ollama"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEmbeddingEnv(t)
			t.Setenv("EMBEDDING_PROVIDER", tc.embedding)
			t.Setenv("MODEL_PROVIDER", tc.model)
			if got := Backend(); got != tc.want {
				t.Errorf("Backend() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDefaultDimensions(t *testing.T) {
	clearEmbeddingEnv(t)
	if got := DefaultDimensions("ollama"); got != 768 {
		t.Errorf("ollama: got %d", got)
	}
	if got := DefaultDimensions("openai"); got != 1536 {
		t.Errorf("openai: got %d", got)
	}
	t.Setenv("EMBEDDING_DIMENSIONS", "384")
	if got := DefaultDimensions("ollama"); got != 384 {
		t.Errorf("override: got %d", got)
	}
}

func TestNewFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantModel string
		wantErr   string
	}{
		{"ollama default", map[string]string{}, "ollama/nomic-embed-text", ""},
		{"openai", map[string]string{"EMBEDDING_PROVIDER": "openai", "OPENAI_API_KEY": "sk"}, "openai/text-embedding-3-small", ""},
		{"openai missing key", map[string]string{"EMBEDDING_PROVIDER": "openai"}, "", "OPENAI_API_KEY"},
		{"azure missing endpoint", map[string]string{"EMBEDDING_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k"}, "", "AZURE_OPENAI_ENDPOINT"},
		{"gemini missing key", map[string]string{"EMBEDDING_PROVIDER": "gemini"}, "", "GOOGLE_API_KEY"},
		{"unknown", map[string]string{"EMBEDDING_PROVIDER": "bogus"}, "", "unknown backend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEmbeddingEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			emb, err := NewFromEnv(context.Background())
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("want error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromEnv: %v", err)
			}
			if emb.ModelName() != tc.wantModel {
				t.Errorf("ModelName() = %q, want %q", emb.ModelName(), tc.wantModel)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"ollama needs nothing", map[string]string{}, ""},
		{"openai without key", map[string]string{"EMBEDDING_PROVIDER": "openai"}, "OPENAI_API_KEY"},
		{"azure without endpoint", map[string]string{"EMBEDDING_PROVIDER": "azure", "EMBEDDING_API_KEY": "k"}, "AZURE_OPENAI_ENDPOINT"},
		{"gemini with key", map[string]string{"EMBEDDING_PROVIDER": "gemini", "GOOGLE_API_KEY": "k"}, ""},
		{"chat model only warns", map[string]string{"EMBEDDING_MODEL": "llama3"}, ""},
		{"unknown backend", map[string]string{"EMBEDDING_PROVIDER": "bedrock"}, "unknown backend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEmbeddingEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			err := Validate(log)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()
	for model, want := range map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"gpt-4o":                 true,
		"Llama3:8b":              true,
	} {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
