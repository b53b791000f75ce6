package server

import (
	"log/slog"
	"net/http"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// kindInvalidRequest marks malformed or incomplete request bodies.
	kindInvalidRequest = "invalid_request"
	// kindTooLarge marks uploads over the configured limit.
	kindTooLarge = "payload_too_large"
	// kindInternal marks failures outside the retrieval error taxonomy.
	kindInternal = "internal"
)

// kindStatus maps each retrieval error kind to its HTTP status.
var kindStatus = map[rag.Kind]int{
	rag.KindUnsupportedFormat:     http.StatusUnsupportedMediaType,
	rag.KindExtraction:            http.StatusUnprocessableEntity,
	rag.KindEmptyContent:          http.StatusUnprocessableEntity,
	rag.KindDocumentNotFound:      http.StatusNotFound,
	rag.KindIndexNotFound:         http.StatusNotFound,
	rag.KindIndexCorrupt:          http.StatusInternalServerError,
	rag.KindEmbeddingService:      http.StatusBadGateway,
	rag.KindGenerationService:     http.StatusBadGateway,
	rag.KindConfigurationMismatch: http.StatusConflict,
}

// statusFor returns the HTTP status for err's kind, or 500 when err carries
// no kind.
func statusFor(err error) int {
	if status, ok := kindStatus[rag.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status code and writes the JSON error body.
// Errors outside the retrieval taxonomy are logged and reported without
// their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := loggerFor(r)
	kind := rag.KindOf(err)
	status := statusFor(err)

	body := errorResponse{Error: err.Error(), Kind: string(kind)}
	if kind == "" {
		body = errorResponse{Error: "internal server error", Kind: kindInternal}
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.String("kind", body.Kind), slog.Any("error", err))
	} else {
		log.Info("request rejected", slog.String("kind", body.Kind), slog.Any("error", err))
	}
	writeJSON(w, r, status, body)
}

// writeBadRequest writes a 400 with the invalid_request kind.
func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: msg, Kind: kindInvalidRequest})
}

// loggerFor returns the request-scoped logger.
func loggerFor(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}
