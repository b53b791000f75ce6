// Package extract turns uploaded file bytes into plain text. The format is
// chosen from the filename extension: .txt (UTF-8 with a Latin-1 fallback),
// .docx (WordprocessingML parsed in-process) and .pdf (via pdftotext).
package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Format names reported in Result.Format.
const (
	FormatText = "txt"
	FormatDOCX = "docx"
	FormatPDF  = "pdf"
)

// MaxExpansion is how many times larger than the upload the extracted
// document body may be.
const MaxExpansion = 5

// DefaultMaxTextBytes caps the decompressed DOCX body and pdftotext output
// when no limit is configured.
const DefaultMaxTextBytes = MaxExpansion * (20 << 20)

// ErrTooLarge reports a document whose decompressed body or extracted text
// exceeds the configured limit.
var ErrTooLarge = errors.New("extracted content exceeds size limit")

// Result is the outcome of a successful extraction.
type Result struct {
	// Text is the raw extracted text, before any cleaning.
	Text string
	// Format is one of FormatText, FormatDOCX, FormatPDF.
	Format string
}

// Extractor dispatches on the filename extension. It is safe for concurrent
// use.
type Extractor struct {
	// runner executes pdftotext for PDF input.
	runner Runner
	// maxText bounds the bytes read out of a DOCX body or pdftotext.
	maxText int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxTextBytes caps the decompressed DOCX body and the pdftotext output
// at n bytes. n <= 0 keeps DefaultMaxTextBytes.
func WithMaxTextBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxText = n
		}
	}
}

// New constructs an Extractor. runner may be nil, in which case PDF input
// fails with an extraction error.
func New(runner Runner, opts ...Option) *Extractor {
	e := &Extractor{runner: runner, maxText: DefaultMaxTextBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supported reports whether filename has an extension the Extractor handles.
func Supported(filename string) bool {
	_, ok := formatOf(filename)
	return ok
}

// Extract returns the text of data interpreted according to filename's
// extension. Unknown extensions fail with rag.KindUnsupportedFormat; unreadable
// content fails with rag.KindExtraction.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	format, ok := formatOf(filename)
	if !ok {
		return nil, rag.Errorf(rag.KindUnsupportedFormat,
			"unsupported file type %q: supported types are .txt, .docx, .pdf", filepath.Ext(filename))
	}

	var (
		text string
		err  error
	)
	switch format {
	case FormatText:
		text = decodeText(data)
	case FormatDOCX:
		text, err = docxText(data, e.maxText)
	case FormatPDF:
		text, err = e.pdfText(ctx, data)
	}
	if err != nil {
		return nil, rag.NewError(rag.KindExtraction, "extract "+filename, err)
	}
	return &Result{Text: text, Format: format}, nil
}

// formatOf maps a filename extension to a format name.
func formatOf(filename string) (string, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".text":
		return FormatText, true
	case ".docx":
		return FormatDOCX, true
	case ".pdf":
		return FormatPDF, true
	}
	return "", false
}
