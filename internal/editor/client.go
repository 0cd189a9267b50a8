// Package editor is the HTTP client for the editor extension that fronts
// Copilot inside the IDE. All calls are JSON over a small REST surface;
// transient failures are retried with exponential backoff.
package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/codebridge/wabridge/internal/config"
	"github.com/codebridge/wabridge/internal/retry"
)

var (
	// ErrUnavailable reports that the extension could not be reached or kept
	// failing after all retries.
	ErrUnavailable = errors.New("editor extension unavailable")
	// ErrRejected reports that the extension refused the request; retrying
	// cannot help.
	ErrRejected = errors.New("editor rejected request")
)

// SuggestionRequest asks Copilot for a completion of the given code.
type SuggestionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
	Context  string `json:"context,omitempty"`
}

// SuggestionResponse is a single Copilot completion.
type SuggestionResponse struct {
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ExplainRequest asks for a natural-language explanation of the given code.
type ExplainRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// ExplainResponse carries the explanation text.
type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

// TestsRequest asks for generated tests for the given code.
type TestsRequest struct {
	Code      string `json:"code"`
	Language  string `json:"language,omitempty"`
	Framework string `json:"framework,omitempty"`
}

// TestsResponse carries the generated test source.
type TestsResponse struct {
	Tests string `json:"tests"`
}

// OpenFileRequest asks the editor to open a file, optionally at a line.
type OpenFileRequest struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// ApplyRequest asks the editor to apply a suggestion to a file.
type ApplyRequest struct {
	Path       string `json:"path"`
	Suggestion string `json:"suggestion"`
}

// WorkspaceContext describes what is open in the editor right now.
type WorkspaceContext struct {
	ActiveFile string   `json:"activeFile,omitempty"`
	Language   string   `json:"language,omitempty"`
	OpenFiles  []string `json:"openFiles,omitempty"`
	Selection  string   `json:"selection,omitempty"`
	Workspace  string   `json:"workspace,omitempty"`
}

// Client talks to the editor extension API.
type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	logger  *slog.Logger
}

// New creates a client from the editor configuration section.
func New(cfg config.Editor, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		policy:  retry.EditorPolicy(cfg.MaxRetries),
		logger:  logger,
	}
}

// Suggest requests a Copilot completion.
func (c *Client) Suggest(ctx context.Context, req SuggestionRequest) (*SuggestionResponse, error) {
	var resp SuggestionResponse
	if err := c.post(ctx, "/suggestion", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Explain requests an explanation of the given code.
func (c *Client) Explain(ctx context.Context, req ExplainRequest) (*ExplainResponse, error) {
	var resp ExplainResponse
	if err := c.post(ctx, "/explain", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateTests requests generated tests for the given code.
func (c *Client) GenerateTests(ctx context.Context, req TestsRequest) (*TestsResponse, error) {
	var resp TestsResponse
	if err := c.post(ctx, "/tests", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenFile asks the editor to open a file.
func (c *Client) OpenFile(ctx context.Context, req OpenFileRequest) error {
	return c.post(ctx, "/open", req, nil)
}

// ApplySuggestion asks the editor to write a suggestion into a file.
func (c *Client) ApplySuggestion(ctx context.Context, req ApplyRequest) error {
	return c.post(ctx, "/apply", req, nil)
}

// GetWorkspaceContext fetches the current editor workspace state.
func (c *Client) GetWorkspaceContext(ctx context.Context) (*WorkspaceContext, error) {
	var resp WorkspaceContext
	if err := c.get(ctx, "/context", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health probes the extension. Used by the health service; a single attempt
// with no retries.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.roundTrip(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, path, nil, out)
}

// roundTrip runs one API call under the retry policy. Connection errors and
// 5xx responses are retried; 4xx responses fail immediately since retrying a
// rejected request cannot succeed.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, out any) error {
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("Editor request failed", "method", method, "path", path, "error", err)
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			c.logger.Warn("Editor returned server error",
				"method", method, "path", path, "status", resp.StatusCode)
			return fmt.Errorf("editor returned status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return retry.Permanent(fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode editor response: %w", err))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
