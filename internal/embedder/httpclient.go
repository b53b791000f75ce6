package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of an embeddings response is read. A full
// batch of 1536-dim vectors is well under this.
const maxResponseBytes = 64 << 20

// restClient posts JSON to an embeddings endpoint and decodes the reply.
type restClient struct {
	// name prefixes every error, e.g. "ollama embedder".
	name string
	// header is added to every request.
	header http.Header
	client *http.Client
}

func newRESTClient(name string, timeout time.Duration, header http.Header) *restClient {
	if header == nil {
		header = http.Header{}
	}
	return &restClient{
		name:   name,
		header: header,
		client: &http.Client{Timeout: timeout},
	}
}

// post sends in to url and decodes a 2xx body into out. For any other status
// describe extracts the backend's own message from the body; when it returns
// "" the status code is reported instead.
func (c *restClient) post(ctx context.Context, url string, in, out any, describe func([]byte) string) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.name, err)
	}
	for k, vs := range c.header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := describe(body)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("%s: %s", c.name, msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

// embedFunc embeds one batch of texts.
type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// inBatches splits texts into runs of at most size and concatenates the
// results in input order. size <= 0 sends everything in one call.
func inBatches(ctx context.Context, texts []string, size int, embed embedFunc) ([][]float32, error) {
	if size <= 0 || len(texts) <= size {
		return embed(ctx, texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err //nolint:wrapcheck // context errors pass through
		}
		end := min(start+size, len(texts))
		vecs, err := embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("inputs %d..%d: %w", start, end-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
