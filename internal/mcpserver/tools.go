package mcpserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codebridge/wabridge/internal/editor"
)

// resolveSession picks the session a tool call acts for. An explicit
// session_id must be ready; without one the first ready session is used.
func (s *Server) resolveSession(request mcp.CallToolRequest) (string, error) {
	if id := request.GetString("session_id", ""); id != "" {
		if !s.directory.IsSessionReady(id) {
			return "", fmt.Errorf("session %s is not ready", id)
		}
		return id, nil
	}

	ready := s.directory.ReadySessions()
	if len(ready) == 0 {
		return "", fmt.Errorf("no ready session available")
	}
	return ready[0], nil
}

// resultKey builds a stable cache key from the request payload.
func resultKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// run wraps a handler body with session resolution and audit logging.
func (s *Server) run(ctx context.Context, toolName string, request mcp.CallToolRequest,
	fn func(ctx context.Context, sessionID string) (string, bool, error)) (*mcp.CallToolResult, error) {

	sessionID, err := s.resolveSession(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.auditLogger.LogToolCall(ctx, &AuditEntry{
		Timestamp: time.Now(),
		SessionID: sessionID,
		ToolName:  toolName,
	})

	start := time.Now()
	text, cached, err := fn(ctx, sessionID)
	if err != nil {
		s.auditLogger.LogToolResult(ctx, &AuditEntry{
			SessionID: sessionID,
			ToolName:  toolName,
			ErrorMsg:  err.Error(),
			Duration:  time.Since(start),
		})
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.auditLogger.LogToolResult(ctx, &AuditEntry{
		SessionID: sessionID,
		ToolName:  toolName,
		Cached:    cached,
		Duration:  time.Since(start),
	})
	return mcp.NewToolResultText(text), nil
}

// handleSuggestion implements the get_copilot_suggestion tool
func (s *Server) handleSuggestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	language := request.GetString("language", "")
	codeContext := request.GetString("context", "")

	return s.run(ctx, toolSuggestion, request, func(ctx context.Context, sessionID string) (string, bool, error) {
		key := resultKey(code, language, codeContext)
		if value, ok := s.cache.Get("suggestion", key); ok {
			return value, true, nil
		}

		resp, err := s.editor.Suggest(ctx, editor.SuggestionRequest{
			Code:     code,
			Language: language,
			Context:  codeContext,
		})
		if err != nil {
			return "", false, err
		}
		if err := s.cache.Store("suggestion", key, resp.Suggestion); err != nil {
			s.logger.Warn("Failed to cache suggestion", "error", err)
		}
		return resp.Suggestion, false, nil
	})
}

// handleExplain implements the explain_code tool
func (s *Server) handleExplain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	language := request.GetString("language", "")

	return s.run(ctx, toolExplainCode, request, func(ctx context.Context, sessionID string) (string, bool, error) {
		key := resultKey(code, language)
		if value, ok := s.cache.Get("explanation", key); ok {
			return value, true, nil
		}

		resp, err := s.editor.Explain(ctx, editor.ExplainRequest{
			Code:     code,
			Language: language,
		})
		if err != nil {
			return "", false, err
		}
		if err := s.cache.Store("explanation", key, resp.Explanation); err != nil {
			s.logger.Warn("Failed to cache explanation", "error", err)
		}
		return resp.Explanation, false, nil
	})
}

// handleGenerateTests implements the generate_tests tool
func (s *Server) handleGenerateTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	language := request.GetString("language", "")
	framework := request.GetString("framework", "")

	return s.run(ctx, toolGenerateTests, request, func(ctx context.Context, sessionID string) (string, bool, error) {
		key := resultKey(code, language, framework)
		if value, ok := s.cache.Get("tests", key); ok {
			return value, true, nil
		}

		resp, err := s.editor.GenerateTests(ctx, editor.TestsRequest{
			Code:      code,
			Language:  language,
			Framework: framework,
		})
		if err != nil {
			return "", false, err
		}
		if err := s.cache.Store("tests", key, resp.Tests); err != nil {
			s.logger.Warn("Failed to cache tests", "error", err)
		}
		return resp.Tests, false, nil
	})
}

// handleOpenFile implements the open_file tool
func (s *Server) handleOpenFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line := request.GetInt("line", 0)

	return s.run(ctx, toolOpenFile, request, func(ctx context.Context, sessionID string) (string, bool, error) {
		if err := s.editor.OpenFile(ctx, editor.OpenFileRequest{Path: path, Line: line}); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("opened %s", path), false, nil
	})
}

// handleWorkspaceContext implements the get_workspace_context tool
func (s *Server) handleWorkspaceContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(ctx, toolWorkspaceContext, request, func(ctx context.Context, sessionID string) (string, bool, error) {
		wc, err := s.editor.GetWorkspaceContext(ctx)
		if err != nil {
			return "", false, err
		}
		data, err := json.MarshalIndent(wc, "", "  ")
		if err != nil {
			return "", false, fmt.Errorf("failed to encode workspace context: %w", err)
		}
		return string(data), false, nil
	})
}

// handleApplySuggestion implements the apply_suggestion tool
func (s *Server) handleApplySuggestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	suggestion, err := request.RequireString("suggestion")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return s.run(ctx, toolApplySuggestion, request, func(ctx context.Context, sessionID string) (string, bool, error) {
		if err := s.editor.ApplySuggestion(ctx, editor.ApplyRequest{Path: path, Suggestion: suggestion}); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("applied suggestion to %s", path), false, nil
	})
}

// handleActiveSession implements the get_active_session tool. Unlike the
// other tools it does not require a ready session: an empty list is a valid
// answer.
func (s *Server) handleActiveSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.auditLogger.LogToolCall(ctx, &AuditEntry{
		Timestamp: time.Now(),
		ToolName:  toolActiveSession,
	})

	payload := struct {
		ReadySessions []string `json:"readySessions"`
		Stats         any      `json:"stats"`
	}{
		ReadySessions: s.directory.ReadySessions(),
		Stats:         s.directory.Stats(),
	}
	if payload.ReadySessions == nil {
		payload.ReadySessions = []string{}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode session state: %v", err)), nil
	}

	s.auditLogger.LogToolResult(ctx, &AuditEntry{ToolName: toolActiveSession})
	return mcp.NewToolResultText(string(data)), nil
}
