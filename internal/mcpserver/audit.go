package mcpserver

import (
	"context"
	"log/slog"
	"time"
)

// AuditEntry represents a logged tool event for provenance tracking
type AuditEntry struct {
	Timestamp time.Time
	SessionID string
	ToolName  string
	Arguments map[string]interface{}
	Cached    bool
	ErrorMsg  string
	Duration  time.Duration
}

// AuditLogger handles audit logging for MCP tool calls
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogToolCall logs a tool invocation with all relevant context
func (al *AuditLogger) LogToolCall(ctx context.Context, entry *AuditEntry) {
	al.logger.InfoContext(ctx, "tool_call",
		"session_id", entry.SessionID,
		"tool_name", entry.ToolName,
		"timestamp", entry.Timestamp,
	)
}

// LogToolResult logs a tool execution result
func (al *AuditLogger) LogToolResult(ctx context.Context, entry *AuditEntry) {
	if entry.ErrorMsg != "" {
		al.logger.ErrorContext(ctx, "tool_error",
			"session_id", entry.SessionID,
			"tool_name", entry.ToolName,
			"error", entry.ErrorMsg,
			"duration_ms", entry.Duration.Milliseconds(),
		)
		return
	}
	al.logger.InfoContext(ctx, "tool_result",
		"session_id", entry.SessionID,
		"tool_name", entry.ToolName,
		"cached", entry.Cached,
		"duration_ms", entry.Duration.Milliseconds(),
	)
}
