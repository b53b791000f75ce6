package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request, including
	// an uploaded file.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover embedding on upload and generation on ask.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the
	// /api/documents routes (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on the /api/documents routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MaxUploadBytes caps the size of an uploaded document. Defaults to
	// DefaultMaxUploadBytes if zero.
	MaxUploadBytes int64
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is exposed on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// DocumentService is the retrieval side used by the handlers.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type DocumentService interface {
	// Ingest extracts, indexes and publishes an uploaded document.
	Ingest(ctx context.Context, data []byte, filename string) (*pipeline.IngestResult, error)
	// QueryContext retrieves the context for a question.
	QueryContext(ctx context.Context, documentID, question string, k int) (*pipeline.QueryResult, error)
	// Passages returns the top-k chunk texts for query.
	Passages(ctx context.Context, documentID, query string, k int) ([]string, error)
	// Evaluate grades an answer against the document.
	Evaluate(ctx context.Context, documentID, question, answer string) (*pipeline.Evaluation, error)
	// EvaluateChallenge grades an answer to a generated challenge.
	EvaluateChallenge(ctx context.Context, documentID string, index int, answer string) (*pipeline.Evaluation, error)
	// Delete removes a document.
	Delete(ctx context.Context, documentID string) error
	// Document returns one document record.
	Document(documentID string) (rag.Document, error)
	// Documents returns every document record.
	Documents() []rag.Document
}

// Answerer is the generation side used by the handlers.
// *assistant.Assistant satisfies it; tests inject a fake.
type Answerer interface {
	// Answer generates an answer grounded in the supplied context.
	Answer(ctx context.Context, req *assistant.AnswerRequest) (string, error)
	// Challenges generates one comprehension question per passage.
	Challenges(ctx context.Context, passages []string) ([]assistant.Challenge, error)
}

// Server is the HTTP server that exposes document upload and question
// answering.
type Server struct {
	// docs is the retrieval pipeline.
	docs DocumentService
	// answers generates answers and challenges.
	answers Answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// handler is the fully wrapped request handler.
	handler http.Handler
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics for this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// documentInfo is the JSON representation of a document.
type documentInfo struct {
	// DocumentID is the id used in every /api/documents/{id} route.
	DocumentID string `json:"document_id"`
	// Filename is the uploaded filename.
	Filename string `json:"filename"`
	// FileType is the detected format.
	FileType string `json:"file_type"`
	// Summary is the first sentences of the document.
	Summary string `json:"summary"`
	// WordCount is the number of words in the document.
	WordCount int `json:"word_count"`
	// CharCount is the number of characters in the document.
	CharCount int `json:"char_count"`
	// ChunkCount is the number of indexed chunks.
	ChunkCount int `json:"chunk_count"`
	// UploadedAt is when the document was published. Omitted on upload
	// responses.
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

// documentListResponse is the JSON response for GET /api/documents.
type documentListResponse struct {
	// Documents are ordered by document_id.
	Documents []documentInfo `json:"documents"`
}

// askRequest is the JSON body for POST /api/documents/{id}/ask.
type askRequest struct {
	// Question is the user's question. Required.
	Question string `json:"question"`
	// History is optional prior turns, oldest first.
	History []rag.Turn `json:"history,omitempty"`
	// TopK overrides the number of retrieved chunks.
	TopK int `json:"top_k,omitempty"`
}

// askResponse is the JSON response for POST /api/documents/{id}/ask.
type askResponse struct {
	// Answer is the generated answer.
	Answer string `json:"answer"`
	// ContextSnippet is the start of the retrieved context.
	ContextSnippet string `json:"context_snippet"`
	// Matches are the retrieved chunks in rank order.
	Matches []rag.Match `json:"matches"`
}

// challengeRequest is the JSON body for POST /api/documents/{id}/challenges.
type challengeRequest struct {
	// Count is the number of questions to generate (1..10, default 3).
	Count int `json:"count,omitempty"`
}

// challengeResponse is the JSON response for POST /api/documents/{id}/challenges.
type challengeResponse struct {
	// Challenges are the generated questions.
	Challenges []assistant.Challenge `json:"challenges"`
}

// evaluateRequest is the JSON body for POST /api/documents/{id}/evaluate.
type evaluateRequest struct {
	// Question selects the passage the answer is graded against.
	Question string `json:"question,omitempty"`
	// ChallengeIndex grades against the challenge at this position in a
	// challenges response. Mutually exclusive with Question.
	ChallengeIndex *int `json:"challenge_index,omitempty"`
	// Answer is the user's answer.
	Answer string `json:"answer"`
}

// errorResponse is the JSON body of every error response.
type errorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`
	// Kind classifies the failure.
	Kind string `json:"kind"`
}
