package editor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codebridge/wabridge/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(config.Editor{
		BaseURL:    server.URL,
		Timeout:    time.Second,
		MaxRetries: 2,
	}, testLogger())
	// Keep retries fast in tests.
	client.policy.InitialDelay = time.Millisecond
	client.policy.MaxDelay = 5 * time.Millisecond
	return client, server
}

func TestClientSuggest(t *testing.T) {
	var gotReq SuggestionRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/suggestion" {
			t.Errorf("Expected POST /suggestion, got %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(SuggestionResponse{Suggestion: "return x * 2", Confidence: 0.9})
	}))

	resp, err := client.Suggest(context.Background(), SuggestionRequest{
		Code:     "def double(x):",
		Language: "python",
	})
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if resp.Suggestion != "return x * 2" {
		t.Errorf("Expected suggestion from server, got %q", resp.Suggestion)
	}
	if gotReq.Code != "def double(x):" || gotReq.Language != "python" {
		t.Errorf("Expected request body forwarded, got %+v", gotReq)
	}
}

func TestClientExplain(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/explain" {
			t.Errorf("Expected /explain, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ExplainResponse{Explanation: "doubles the input"})
	}))

	resp, err := client.Explain(context.Background(), ExplainRequest{Code: "x * 2"})
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	if resp.Explanation != "doubles the input" {
		t.Errorf("Expected explanation, got %q", resp.Explanation)
	}
}

func TestClientGenerateTests(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tests" {
			t.Errorf("Expected /tests, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(TestsResponse{Tests: "def test_double(): ..."})
	}))

	resp, err := client.GenerateTests(context.Background(), TestsRequest{Code: "def double(x): ..."})
	if err != nil {
		t.Fatalf("GenerateTests failed: %v", err)
	}
	if resp.Tests == "" {
		t.Error("Expected generated tests")
	}
}

func TestClientOpenFileAndApply(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.OpenFile(context.Background(), OpenFileRequest{Path: "main.go", Line: 10}); err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if err := client.ApplySuggestion(context.Background(), ApplyRequest{Path: "main.go", Suggestion: "x"}); err != nil {
		t.Fatalf("ApplySuggestion failed: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/open" || paths[1] != "/apply" {
		t.Errorf("Expected /open then /apply, got %v", paths)
	}
}

func TestClientGetWorkspaceContext(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/context" {
			t.Errorf("Expected GET /context, got %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(WorkspaceContext{
			ActiveFile: "main.go",
			Language:   "go",
			OpenFiles:  []string{"main.go", "main_test.go"},
		})
	}))

	wc, err := client.GetWorkspaceContext(context.Background())
	if err != nil {
		t.Fatalf("GetWorkspaceContext failed: %v", err)
	}
	if wc.ActiveFile != "main.go" || len(wc.OpenFiles) != 2 {
		t.Errorf("Expected workspace context from server, got %+v", wc)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(SuggestionResponse{Suggestion: "ok"})
	}))

	resp, err := client.Suggest(context.Background(), SuggestionRequest{Code: "x"})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if resp.Suggestion != "ok" {
		t.Errorf("Expected retried response, got %q", resp.Suggestion)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := client.Suggest(context.Background(), SuggestionRequest{Code: "x"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Expected ErrRejected, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly 1 attempt for 400, got %d", calls.Load())
	}
}

func TestClientUnavailableAfterExhaustion(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_ = server

	_, err := client.Suggest(context.Background(), SuggestionRequest{Code: "x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable after exhausting retries, got %v", err)
	}
}

func TestClientHealth(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/health" {
			t.Errorf("Expected /health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single non-retried probe, got %d", calls.Load())
	}
}

func TestClientHealthUnavailable(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_ = server

	if err := client.Health(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}
