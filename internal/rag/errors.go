package rag

import (
	"errors"
	"fmt"
)

// Kind classifies a retrieval error so callers can react to it without
// parsing messages. The HTTP layer maps each kind to a status code.
type Kind string

const (
	// KindUnsupportedFormat means the uploaded file type has no extractor.
	KindUnsupportedFormat Kind = "unsupported_format"
	// KindExtraction means the extractor could not read the document.
	KindExtraction Kind = "extraction_failed"
	// KindEmptyContent means the document contained no usable text.
	KindEmptyContent Kind = "empty_content"
	// KindDocumentNotFound means the document id is not registered.
	KindDocumentNotFound Kind = "document_not_found"
	// KindIndexNotFound means no index is cached or persisted for the document.
	KindIndexNotFound Kind = "index_not_found"
	// KindIndexCorrupt means a persisted index failed its integrity checks.
	KindIndexCorrupt Kind = "index_corrupt"
	// KindEmbeddingService means the embedding backend failed. Retryable.
	KindEmbeddingService Kind = "embedding_service"
	// KindGenerationService means the chat model backend failed. Retryable.
	KindGenerationService Kind = "generation_service"
	// KindConfigurationMismatch means the configured embedder does not match
	// the one an index was built with.
	KindConfigurationMismatch Kind = "configuration_mismatch"
)

// Error is the error type returned by the retrieval core. Two Errors match
// under errors.Is when their kinds are equal, so the sentinel values below can
// be used as targets regardless of message or cause.
type Error struct {
	// Kind is the stable classification of the failure.
	Kind Kind
	// Message is a human-readable description.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrUnsupportedFormat     = &Error{Kind: KindUnsupportedFormat}
	ErrExtraction            = &Error{Kind: KindExtraction}
	ErrEmptyContent          = &Error{Kind: KindEmptyContent}
	ErrDocumentNotFound      = &Error{Kind: KindDocumentNotFound}
	ErrIndexNotFound         = &Error{Kind: KindIndexNotFound}
	ErrIndexCorrupt          = &Error{Kind: KindIndexCorrupt}
	ErrEmbeddingService      = &Error{Kind: KindEmbeddingService}
	ErrGenerationService     = &Error{Kind: KindGenerationService}
	ErrConfigurationMismatch = &Error{Kind: KindConfigurationMismatch}
)

// ErrBlobNotFound is returned by BlobStore implementations when a key has no
// stored value.
var ErrBlobNotFound = errors.New("blob not found")

// NewError constructs an *Error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf constructs an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
