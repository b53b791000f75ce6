package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// pdfMagic is the header every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner implements Runner with os/exec. It is the runner used in
// production.
type ExecRunner struct{}

// NewExecRunner returns a new ExecRunner. It verifies that pdftotext is
// available on PATH at construction time.
func NewExecRunner() (*ExecRunner, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("extract: pdftotext not found on PATH (install poppler-utils)")
	}
	return &ExecRunner{}, nil
}

// Run executes name with args and returns the captured stdout. A non-zero
// exit status is returned as an error carrying stderr.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("extract: %s exited %d: %s", name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("extract: failed to run %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// pdfText writes data to a temporary file and runs pdftotext over it.
func (e *Extractor) pdfText(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", errors.New("pdf: missing %PDF- header")
	}
	if e.runner == nil {
		return "", errors.New("pdf: no pdftotext runner configured")
	}

	tmp, err := os.CreateTemp("", "docqa-*.pdf")
	if err != nil {
		return "", fmt.Errorf("pdf: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("pdf: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("pdf: close temp file: %w", err)
	}

	out, err := e.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", "-layout", tmp.Name(), "-")
	if err != nil {
		return "", fmt.Errorf("pdf: %w", err)
	}
	if int64(len(out)) > e.maxText {
		return "", fmt.Errorf("pdf: pdftotext produced %d bytes, limit %d: %w", len(out), e.maxText, ErrTooLarge)
	}
	// pdftotext separates pages with form feeds.
	return strings.ReplaceAll(decodeText(out), "\f", "\n\n"), nil
}
