package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FuncPinger adapts a dependency's own Ping method, such as
// store.SQLiteStore.Ping or rag.QdrantStore.Ping, to the Pinger interface.
type FuncPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// ping is the probe.
	ping func(ctx context.Context) error
}

// NewFuncPinger constructs a FuncPinger.
func NewFuncPinger(name string, ping func(ctx context.Context) error) *FuncPinger {
	return &FuncPinger{name: name, ping: ping}
}

// Name returns the dependency label used in readiness responses.
func (p *FuncPinger) Name() string { return p.name }

// Ping runs the wrapped probe.
func (p *FuncPinger) Ping(ctx context.Context) error {
	if err := p.ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}

// HTTPPinger probes a model backend by issuing a GET against its endpoint.
// Any response below 500 counts as reachable, so an unauthenticated probe of
// a cloud API that answers 401 still reports the network path as healthy.
// No tokens are consumed.
type HTTPPinger struct {
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
	// url is the endpoint probed.
	url string
	// client issues the probe request.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. A nil client uses http.DefaultClient.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the backend label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the probe request.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("%s: build probe: %w", p.name, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: unreachable: %w", p.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: probe returned status %d", p.name, resp.StatusCode)
	}
	return nil
}
