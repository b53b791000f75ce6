package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeDocs implements DocumentService with canned results.
type fakeDocs struct {
	mu sync.Mutex

	// err, when set, is returned by every method.
	err error
	// docs is returned by Documents and Document.
	docs []rag.Document
	// query is returned by QueryContext.
	query *pipeline.QueryResult
	// passages is returned by Passages.
	passages []string
	// eval is returned by Evaluate.
	eval *pipeline.Evaluation

	// Recorded arguments.
	ingestedName  string
	ingestedBytes int
	lastQuery     string
	lastK         int
	lastChallenge int
	deleted       string
}

func (f *fakeDocs) Ingest(_ context.Context, data []byte, filename string) (*pipeline.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingestedName, f.ingestedBytes = filename, len(data)
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.IngestResult{
		DocumentID: pipeline.DocumentID(filename),
		Filename:   filename,
		Format:     "txt",
		Summary:    "Summary...",
		WordCount:  3,
		CharCount:  len(data),
		ChunkCount: 1,
	}, nil
}

func (f *fakeDocs) QueryContext(_ context.Context, _, question string, k int) (*pipeline.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery, f.lastK = question, k
	if f.err != nil {
		return nil, f.err
	}
	return f.query, nil
}

func (f *fakeDocs) Passages(_ context.Context, _, query string, k int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery, f.lastK = query, k
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

func (f *fakeDocs) Evaluate(_ context.Context, _, question, _ string) (*pipeline.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = question
	if f.err != nil {
		return nil, f.err
	}
	return f.eval, nil
}

func (f *fakeDocs) EvaluateChallenge(_ context.Context, _ string, index int, _ string) (*pipeline.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastChallenge = index
	if f.err != nil {
		return nil, f.err
	}
	return f.eval, nil
}

func (f *fakeDocs) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = id
	return f.err
}

func (f *fakeDocs) Document(id string) (rag.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return rag.Document{}, f.err
	}
	for _, d := range f.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return rag.Document{}, rag.Errorf(rag.KindDocumentNotFound, "document %q not found", id)
}

func (f *fakeDocs) Documents() []rag.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs
}

// fakeAnswerer implements Answerer.
type fakeAnswerer struct {
	mu sync.Mutex

	answer     string
	challenges []assistant.Challenge
	err        error

	calls   int
	lastReq *assistant.AnswerRequest
	lastPas []string
}

func (f *fakeAnswerer) Answer(_ context.Context, req *assistant.AnswerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeAnswerer) Challenges(_ context.Context, passages []string) ([]assistant.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPas = passages
	if f.err != nil {
		return nil, f.err
	}
	return f.challenges, nil
}

// newTestServer builds a bare *Server for direct handler tests.
func newTestServer() *Server {
	return &Server{cfg: &Config{}}
}

// newAPIServer builds a fully wired Server with an isolated metrics registry.
func newAPIServer(t *testing.T, docs DocumentService, ans Answerer, mutate func(*Config)) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := &Config{
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		RateLimit:       1000,
		RateBurst:       1000,
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(docs, ans, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, reg
}

// do sends a request through the full handler chain.
func do(t *testing.T, s *Server, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// multipartBody builds a multipart/form-data body with one file field.
func multipartBody(t *testing.T, field, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v (raw %q)", err, w.Body.String())
	}
	return body
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeAnswerer{}, nil); err == nil {
		t.Error("expected error for nil document service")
	}
	if _, err := New(&fakeDocs{}, nil, nil); err == nil {
		t.Error("expected error for nil answerer")
	}
}

// ---------------------------------------------------------------------------
// POST /api/documents
// ---------------------------------------------------------------------------

func TestHandleUpload_Created(t *testing.T) {
	t.Parallel()
	docs := &fakeDocs{}
	s, _ := newAPIServer(t, docs, &fakeAnswerer{}, nil)

	body, ct := multipartBody(t, "file", "Quarterly Report.txt", []byte("hello world."))
	w := do(t, s, http.MethodPost, "/api/documents", ct, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body: %s", w.Code, w.Body.String())
	}
	var info documentInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.DocumentID != "Quarterly_Report" || info.Summary != "Summary..." || info.WordCount != 3 {
		t.Errorf("unexpected document info %+v", info)
	}
	if info.UploadedAt != nil {
		t.Error("upload response should omit uploaded_at")
	}
	if docs.ingestedName != "Quarterly Report.txt" || docs.ingestedBytes != len("hello world.") {
		t.Errorf("ingest received %q (%d bytes)", docs.ingestedName, docs.ingestedBytes)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandleUpload_MissingFileField(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, &fakeDocs{}, &fakeAnswerer{}, nil)

	body, ct := multipartBody(t, "document", "a.txt", []byte("x"))
	w := do(t, s, http.MethodPost, "/api/documents", ct, body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decodeError(t, w).Kind; got != kindInvalidRequest {
		t.Errorf("kind: expected %q, got %q", kindInvalidRequest, got)
	}
}

func TestHandleUpload_NotMultipart(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, &fakeDocs{}, &fakeAnswerer{}, nil)

	w := do(t, s, http.MethodPost, "/api/documents", "application/json", []byte(`{}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleUpload_TooLarge(t *testing.T) {
	t.Parallel()
	docs := &fakeDocs{}
	s, _ := newAPIServer(t, docs, &fakeAnswerer{}, func(c *Config) { c.MaxUploadBytes = 1024 })

	body, ct := multipartBody(t, "file", "big.txt", bytes.Repeat([]byte("a"), 4096))
	w := do(t, s, http.MethodPost, "/api/documents", ct, body)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d, body: %s", w.Code, w.Body.String())
	}
	if docs.ingestedName != "" {
		t.Error("oversized upload must not reach the pipeline")
	}
}

func TestHandleUpload_PipelineErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind rag.Kind
		want int
	}{
		{rag.KindUnsupportedFormat, http.StatusUnsupportedMediaType},
		{rag.KindExtraction, http.StatusUnprocessableEntity},
		{rag.KindEmptyContent, http.StatusUnprocessableEntity},
		{rag.KindEmbeddingService, http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()
			docs := &fakeDocs{err: rag.Errorf(tc.kind, "failed")}
			s, _ := newAPIServer(t, docs, &fakeAnswerer{}, nil)

			body, ct := multipartBody(t, "file", "a.txt", []byte("x"))
			w := do(t, s, http.MethodPost, "/api/documents", ct, body)

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if got := decodeError(t, w).Kind; got != string(tc.kind) {
				t.Errorf("kind: expected %q, got %q", tc.kind, got)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Error kind to status mapping
// ---------------------------------------------------------------------------

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
		kind string
	}{
		{rag.Errorf(rag.KindUnsupportedFormat, "x"), http.StatusUnsupportedMediaType, "unsupported_format"},
		{rag.Errorf(rag.KindExtraction, "x"), http.StatusUnprocessableEntity, "extraction_failed"},
		{rag.Errorf(rag.KindEmptyContent, "x"), http.StatusUnprocessableEntity, "empty_content"},
		{rag.Errorf(rag.KindDocumentNotFound, "x"), http.StatusNotFound, "document_not_found"},
		{rag.Errorf(rag.KindIndexNotFound, "x"), http.StatusNotFound, "index_not_found"},
		{rag.Errorf(rag.KindIndexCorrupt, "x"), http.StatusInternalServerError, "index_corrupt"},
		{rag.Errorf(rag.KindEmbeddingService, "x"), http.StatusBadGateway, "embedding_service"},
		{rag.Errorf(rag.KindGenerationService, "x"), http.StatusBadGateway, "generation_service"},
		{rag.Errorf(rag.KindConfigurationMismatch, "x"), http.StatusConflict, "configuration_mismatch"},
		{fmt.Errorf("pipeline: %w", rag.Errorf(rag.KindIndexCorrupt, "x")), http.StatusInternalServerError, "index_corrupt"},
		{errors.New("disk full"), http.StatusInternalServerError, kindInternal},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			t.Parallel()
			s, _ := newAPIServer(t, &fakeDocs{err: tc.err}, &fakeAnswerer{}, nil)

			w := do(t, s, http.MethodGet, "/api/documents/report", "", nil)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			body := decodeError(t, w)
			if body.Kind != tc.kind {
				t.Errorf("kind: expected %q, got %q", tc.kind, body.Kind)
			}
			if tc.kind == kindInternal && strings.Contains(body.Error, "disk full") {
				t.Error("internal error details must not leak to clients")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Document listing and deletion
// ---------------------------------------------------------------------------

func TestHandleListAndGet(t *testing.T) {
	t.Parallel()
	uploaded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	docs := &fakeDocs{docs: []rag.Document{
		{ID: "alpha", Filename: "alpha.txt", Format: "txt", Summary: "A...", WordCount: 10, UploadedAt: uploaded},
		{ID: "beta", Filename: "beta.pdf", Format: "pdf", Summary: "B...", WordCount: 20, UploadedAt: uploaded},
	}}
	s, _ := newAPIServer(t, docs, &fakeAnswerer{}, nil)

	w := do(t, s, http.MethodGet, "/api/documents", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list documentListResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Documents) != 2 || list.Documents[1].FileType != "pdf" {
		t.Errorf("unexpected list %+v", list.Documents)
	}

	w = do(t, s, http.MethodGet, "/api/documents/alpha", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var info documentInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.UploadedAt == nil || !info.UploadedAt.Equal(uploaded) {
		t.Errorf("uploaded_at: got %v", info.UploadedAt)
	}

	w = do(t, s, http.MethodGet, "/api/documents/missing", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", w.Code)
	}
}

func TestHandleListDocuments_EmptyIsArray(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, &fakeDocs{}, &fakeAnswerer{}, nil)

	w := do(t, s, http.MethodGet, "/api/documents", "", nil)
	if !strings.Contains(w.Body.String(), `"documents":[]`) {
		t.Errorf("expected an empty array, got %s", w.Body.String())
	}
}

func TestHandleDeleteDocument(t *testing.T) {
	t.Parallel()
	docs := &fakeDocs{}
	s, _ := newAPIServer(t, docs, &fakeAnswerer{}, nil)

	w := do(t, s, http.MethodDelete, "/api/documents/old-report", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if docs.deleted != "old-report" {
		t.Errorf("deleted %q", docs.deleted)
	}
}

// ---------------------------------------------------------------------------
// POST /api/documents/{id}/ask
// ---------------------------------------------------------------------------

func TestHandleAsk_OK(t *testing.T) {
	t.Parallel()
	ctxText := strings.Repeat("c", 500)
	docs := &fakeDocs{query: &pipeline.QueryResult{
		Context: ctxText,
		Matches: []rag.Match{{Text: ctxText, Score: 0.9, Position: 0}},
	}}
	ans := &fakeAnswerer{answer: "The answer."}
	s, reg := newAPIServer(t, docs, ans, nil)

	body := []byte(`{"question":"What?","top_k":2,"history":[{"question":"q1","answer":"a1"}]}`)
	w := do(t, s, http.MethodPost, "/api/documents/report/ask", "application/json", body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "The answer." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if resp.ContextSnippet != strings.Repeat("c", snippetChars)+"..." {
		t.Errorf("snippet should be %d chars plus ellipsis, got %d chars", snippetChars, len(resp.ContextSnippet))
	}
	if len(resp.Matches) != 1 {
		t.Errorf("expected 1 match, got %d", len(resp.Matches))
	}
	if docs.lastK != 2 {
		t.Errorf("top_k not forwarded: %d", docs.lastK)
	}
	if ans.lastReq.DocumentID != "report" || ans.lastReq.Context != ctxText || len(ans.lastReq.History) != 1 {
		t.Errorf("unexpected answer request %+v", ans.lastReq)
	}
	if got := counterValue(t, reg, "docqa_ask_requests_total", "outcome", "ok"); got != 1 {
		t.Errorf("ask ok counter: want 1, got %v", got)
	}
}

func TestHandleAsk_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"question":`},
		{"missing question", `{"top_k":3}`},
		{"blank question", `{"question":"   "}`},
		{"negative top_k", `{"question":"q","top_k":-1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ans := &fakeAnswerer{}
			s, _ := newAPIServer(t, &fakeDocs{}, ans, nil)

			w := do(t, s, http.MethodPost, "/api/documents/report/ask", "application/json", []byte(tc.body))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if ans.calls != 0 {
				t.Error("answerer must not be called for invalid requests")
			}
		})
	}
}

func TestHandleAsk_RetrievalErrorSkipsGeneration(t *testing.T) {
	t.Parallel()
	ans := &fakeAnswerer{answer: "unused"}
	docs := &fakeDocs{err: rag.Errorf(rag.KindDocumentNotFound, "document %q not found", "nope")}
	s, _ := newAPIServer(t, docs, ans, nil)

	w := do(t, s, http.MethodPost, "/api/documents/nope/ask", "application/json", []byte(`{"question":"q"}`))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if ans.calls != 0 {
		t.Error("answerer must not be called when retrieval fails")
	}
}

func TestHandleAsk_GenerationError(t *testing.T) {
	t.Parallel()
	docs := &fakeDocs{query: &pipeline.QueryResult{Context: "ctx"}}
	ans := &fakeAnswerer{err: rag.NewError(rag.KindGenerationService, "generate answer", errors.New("429"))}
	s, _ := newAPIServer(t, docs, ans, nil)

	w := do(t, s, http.MethodPost, "/api/documents/report/ask", "application/json", []byte(`{"question":"q"}`))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if got := decodeError(t, w).Kind; got != string(rag.KindGenerationService) {
		t.Errorf("kind: got %q", got)
	}
}

// ---------------------------------------------------------------------------
// POST /api/documents/{id}/challenges
// ---------------------------------------------------------------------------

func TestHandleChallenges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantCount int
	}{
		{"empty body uses default", ``, http.StatusOK, defaultChallengeCount},
		{"explicit count", `{"count":5}`, http.StatusOK, 5},
		{"count too large", `{"count":11}`, http.StatusBadRequest, 0},
		{"negative count", `{"count":-2}`, http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			docs := &fakeDocs{passages: []string{"p1", "p2"}}
			ans := &fakeAnswerer{challenges: []assistant.Challenge{
				{Question: "Q1", Answer: "A1", Justification: "J1"},
				{Question: "Q2", Answer: "A2", Justification: "J2"},
			}}
			s, _ := newAPIServer(t, docs, ans, nil)

			w := do(t, s, http.MethodPost, "/api/documents/report/challenges", "application/json", []byte(tc.body))
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d, body: %s", tc.wantCode, w.Code, w.Body.String())
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			if docs.lastQuery != pipeline.KeyPointsQuery || docs.lastK != tc.wantCount {
				t.Errorf("passages requested with %q/%d", docs.lastQuery, docs.lastK)
			}
			var resp challengeResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Challenges) != 2 || resp.Challenges[1].Justification != "J2" {
				t.Errorf("unexpected challenges %+v", resp.Challenges)
			}
			if len(ans.lastPas) != 2 {
				t.Errorf("passages not forwarded: %v", ans.lastPas)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// POST /api/documents/{id}/evaluate
// ---------------------------------------------------------------------------

func TestHandleEvaluate(t *testing.T) {
	t.Parallel()
	docs := &fakeDocs{eval: &pipeline.Evaluation{Correct: true, Expected: "The capital is Paris"}}
	s, _ := newAPIServer(t, docs, &fakeAnswerer{}, nil)

	w := do(t, s, http.MethodPost, "/api/documents/geo/evaluate", "application/json",
		[]byte(`{"question":"capital?","answer":"paris"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got pipeline.Evaluation
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Correct || got.Expected != "The capital is Paris" {
		t.Errorf("unexpected evaluation %+v", got)
	}
	if docs.lastQuery != "capital?" {
		t.Errorf("question not forwarded: %q", docs.lastQuery)
	}
}

func TestHandleEvaluate_ChallengeIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		err       error
		wantCode  int
		wantIndex int
	}{
		{"selects challenge", `{"challenge_index":2,"answer":"paris"}`, nil, http.StatusOK, 2},
		{"first challenge", `{"challenge_index":0,"answer":"paris"}`, nil, http.StatusOK, 0},
		{"negative", `{"challenge_index":-1,"answer":"paris"}`, nil, http.StatusBadRequest, -1},
		{"above challenge limit", `{"challenge_index":10,"answer":"paris"}`, nil, http.StatusBadRequest, -1},
		{"with question", `{"challenge_index":1,"question":"capital?","answer":"paris"}`, nil, http.StatusBadRequest, -1},
		{"beyond passages", `{"challenge_index":4,"answer":"paris"}`, pipeline.ErrChallengeIndex, http.StatusBadRequest, 4},
		{"unknown document", `{"challenge_index":0,"answer":"paris"}`, rag.ErrDocumentNotFound, http.StatusNotFound, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			docs := &fakeDocs{
				err:           tc.err,
				eval:          &pipeline.Evaluation{Correct: true, Expected: "The capital is Paris"},
				lastChallenge: -1,
			}
			s, _ := newAPIServer(t, docs, &fakeAnswerer{}, nil)

			w := do(t, s, http.MethodPost, "/api/documents/geo/evaluate", "application/json", []byte(tc.body))
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d, body: %s", tc.wantCode, w.Code, w.Body.String())
			}
			if docs.lastChallenge != tc.wantIndex {
				t.Errorf("challenge index: want %d, got %d", tc.wantIndex, docs.lastChallenge)
			}
			if docs.lastQuery != "" {
				t.Errorf("question path used: %q", docs.lastQuery)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Route protection
// ---------------------------------------------------------------------------

func TestRoutes_AuthProtectsDocumentsOnly(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, &fakeDocs{}, &fakeAnswerer{}, func(c *Config) { c.APIKey = "secret" })

	if w := do(t, s, http.MethodGet, "/api/documents", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("documents without token: expected 401, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/ready", "", nil); w.Code != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("documents with token: expected 200, got %d", w.Code)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, &fakeDocs{}, &fakeAnswerer{}, nil)

	if w := do(t, s, http.MethodPut, "/api/documents/report", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}
