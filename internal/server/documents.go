package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// multipartMemory is the part of a multipart upload kept in memory
	// before spilling to temporary files.
	multipartMemory = 8 << 20

	// snippetChars is the length of the context snippet returned by ask.
	snippetChars = 400

	// defaultChallengeCount and maxChallengeCount bound POST .../challenges.
	defaultChallengeCount = 3
	maxChallengeCount     = 10

	// maxJSONBody caps JSON request bodies.
	maxJSONBody = 1 << 20
)

// handleUpload handles POST /api/documents. The document is read from the
// multipart field "file", indexed, and described in a 201 response.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.uploadsTotal.WithLabelValues(kindTooLarge).Inc()
			writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes),
				Kind:  kindTooLarge,
			})
			return
		}
		writeBadRequest(w, r, "expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, r, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBadRequest(w, r, "failed to read uploaded file")
		return
	}
	s.metrics.uploadBytes.Observe(float64(len(data)))

	res, err := s.docs.Ingest(r.Context(), data, header.Filename)
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues(outcome(err)).Inc()
		writeError(w, r, err)
		return
	}
	s.metrics.uploadsTotal.WithLabelValues("ok").Inc()

	loggerFor(r).Info("document uploaded",
		slog.String("document_id", res.DocumentID),
		slog.Int("bytes", len(data)),
		slog.Int("chunks", res.ChunkCount),
	)
	writeJSON(w, r, http.StatusCreated, ingestInfo(res))
}

// handleListDocuments handles GET /api/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.docs.Documents()
	resp := documentListResponse{Documents: make([]documentInfo, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, docInfo(d))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleGetDocument handles GET /api/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Document(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, docInfo(doc))
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAsk handles POST /api/documents/{id}/ask: retrieve context for the
// question, then generate an answer grounded in it.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("id")

	var req askRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeBadRequest(w, r, "question is required")
		return
	}
	if req.TopK < 0 {
		writeBadRequest(w, r, "top_k must not be negative")
		return
	}

	res, err := s.docs.QueryContext(r.Context(), id, req.Question, req.TopK)
	if err != nil {
		s.observeAsk(outcome(err), start)
		writeError(w, r, err)
		return
	}

	answer, err := s.answers.Answer(r.Context(), &assistant.AnswerRequest{
		DocumentID: id,
		Question:   req.Question,
		Context:    res.Context,
		History:    req.History,
	})
	if err != nil {
		s.observeAsk(outcome(err), start)
		writeError(w, r, err)
		return
	}
	s.observeAsk("ok", start)

	matches := res.Matches
	if matches == nil {
		matches = []rag.Match{}
	}
	writeJSON(w, r, http.StatusOK, askResponse{
		Answer:         answer,
		ContextSnippet: budget.Truncate(res.Context, snippetChars) + "...",
		Matches:        matches,
	})
}

// handleChallenges handles POST /api/documents/{id}/challenges. Questions are
// generated from the passages that best match a generic key-points query.
func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req challengeRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	count := req.Count
	if count == 0 {
		count = defaultChallengeCount
	}
	if count < 1 || count > maxChallengeCount {
		writeBadRequest(w, r, fmt.Sprintf("count must be between 1 and %d", maxChallengeCount))
		return
	}

	passages, err := s.docs.Passages(r.Context(), id, pipeline.KeyPointsQuery, count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	challenges, err := s.answers.Challenges(r.Context(), passages)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if challenges == nil {
		challenges = []assistant.Challenge{}
	}
	writeJSON(w, r, http.StatusOK, challengeResponse{Challenges: challenges})
}

// handleEvaluate handles POST /api/documents/{id}/evaluate. The answer is
// graded against the passage matching question, or against the challenge at
// challenge_index when that is set.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	id := r.PathValue("id")

	var (
		eval *pipeline.Evaluation
		err  error
	)
	switch {
	case req.ChallengeIndex == nil:
		eval, err = s.docs.Evaluate(r.Context(), id, req.Question, req.Answer)
	case strings.TrimSpace(req.Question) != "":
		writeBadRequest(w, r, "question and challenge_index are mutually exclusive")
		return
	case *req.ChallengeIndex < 0 || *req.ChallengeIndex >= maxChallengeCount:
		writeBadRequest(w, r, fmt.Sprintf("challenge_index must be between 0 and %d", maxChallengeCount-1))
		return
	default:
		eval, err = s.docs.EvaluateChallenge(r.Context(), id, *req.ChallengeIndex, req.Answer)
	}
	if errors.Is(err, pipeline.ErrChallengeIndex) {
		writeBadRequest(w, r, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, eval)
}

// observeAsk records the outcome and latency of one ask request.
func (s *Server) observeAsk(result string, start time.Time) {
	s.metrics.askRequestsTotal.WithLabelValues(result).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// decodeJSON decodes a bounded JSON body into v. When optional is true an
// empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// outcome labels a failed request by its error kind.
func outcome(err error) string {
	if kind := rag.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// docInfo converts a catalog record to its JSON form.
func docInfo(d rag.Document) documentInfo {
	uploaded := d.UploadedAt
	return documentInfo{
		DocumentID: d.ID,
		Filename:   d.Filename,
		FileType:   d.Format,
		Summary:    d.Summary,
		WordCount:  d.WordCount,
		CharCount:  d.CharCount,
		ChunkCount: d.ChunkCount,
		UploadedAt: &uploaded,
	}
}

// ingestInfo converts an ingest result to its JSON form.
func ingestInfo(res *pipeline.IngestResult) documentInfo {
	return documentInfo{
		DocumentID: res.DocumentID,
		Filename:   res.Filename,
		FileType:   res.Format,
		Summary:    res.Summary,
		WordCount:  res.WordCount,
		CharCount:  res.CharCount,
		ChunkCount: res.ChunkCount,
	}
}
