package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name  string
	err   error
	delay time.Duration
}

func (f *fakePinger) Name() string { return f.name }

func (f *fakePinger) Ping(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestServer().handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected ok, got %q", body["status"])
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		pingers   []Pinger
		wantCode  int
		wantReady bool
		wantOK    map[string]bool
	}{
		{
			name:      "no pingers",
			wantCode:  http.StatusOK,
			wantReady: true,
			wantOK:    map[string]bool{},
		},
		{
			name:      "all healthy",
			pingers:   []Pinger{&fakePinger{name: "ollama"}, &fakePinger{name: "store"}},
			wantCode:  http.StatusOK,
			wantReady: true,
			wantOK:    map[string]bool{"ollama": true, "store": true},
		},
		{
			name: "one failing",
			pingers: []Pinger{
				&fakePinger{name: "store"},
				&fakePinger{name: "qdrant", err: errors.New("connection refused")},
			},
			wantCode: http.StatusServiceUnavailable,
			wantOK:   map[string]bool{"store": true, "qdrant": false},
		},
		{
			name: "all failing",
			pingers: []Pinger{
				&fakePinger{name: "openai", err: errors.New("timeout")},
				&fakePinger{name: "store", err: errors.New("database is locked")},
			},
			wantCode: http.StatusServiceUnavailable,
			wantOK:   map[string]bool{"openai": false, "store": false},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newReadyTestServer(tc.pingers...)
			w := httptest.NewRecorder()
			s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d, body: %s", tc.wantCode, w.Code, w.Body.String())
			}
			var resp readyResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("ready: got %v, want %v", resp.Ready, tc.wantReady)
			}
			if resp.Checks == nil {
				t.Error("checks must encode as an array, not null")
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("expected %d checks, got %d", len(tc.wantOK), len(resp.Checks))
			}
			for _, c := range resp.Checks {
				want, ok := tc.wantOK[c.Name]
				if !ok {
					t.Errorf("unexpected check %q", c.Name)
					continue
				}
				if c.OK != want {
					t.Errorf("check %q: ok=%v, want %v", c.Name, c.OK, want)
				}
				if !c.OK && c.Error == "" {
					t.Errorf("check %q: failing check must carry an error", c.Name)
				}
			}
		})
	}
}

func TestHandleReady_CancelledRequest(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(&fakePinger{name: "slow", delay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleReady(w, req)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("readiness probe did not honour request cancellation")
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for an aborted probe, got %d", w.Code)
	}
}
