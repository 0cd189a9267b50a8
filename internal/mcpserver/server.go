// Package mcpserver exposes the bridge to MCP clients. Each tool fronts one
// editor capability; calls require a ready WhatsApp session and go through
// the result cache where repetition is likely.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codebridge/wabridge/internal/cache"
	"github.com/codebridge/wabridge/internal/editor"
	"github.com/codebridge/wabridge/internal/session"
)

const (
	// Tool names
	toolSuggestion       = "get_copilot_suggestion"
	toolExplainCode      = "explain_code"
	toolGenerateTests    = "generate_tests"
	toolOpenFile         = "open_file"
	toolWorkspaceContext = "get_workspace_context"
	toolApplySuggestion  = "apply_suggestion"
	toolActiveSession    = "get_active_session"
)

// SessionDirectory is the slice of the session directory the tools consult.
type SessionDirectory interface {
	ReadySessions() []string
	IsSessionReady(id string) bool
	Stats() session.Stats
}

// EditorClient is the slice of the editor client the tools call.
type EditorClient interface {
	Suggest(ctx context.Context, req editor.SuggestionRequest) (*editor.SuggestionResponse, error)
	Explain(ctx context.Context, req editor.ExplainRequest) (*editor.ExplainResponse, error)
	GenerateTests(ctx context.Context, req editor.TestsRequest) (*editor.TestsResponse, error)
	OpenFile(ctx context.Context, req editor.OpenFileRequest) error
	ApplySuggestion(ctx context.Context, req editor.ApplyRequest) error
	GetWorkspaceContext(ctx context.Context) (*editor.WorkspaceContext, error)
}

// Server wraps the mcp-go server with the bridge's tools
type Server struct {
	server      *server.MCPServer
	directory   SessionDirectory
	editor      EditorClient
	cache       *cache.Cache
	auditLogger *AuditLogger
	logger      *slog.Logger
}

// Config holds identification for the MCP server
type Config struct {
	Name    string
	Version string
}

// New creates and configures the MCP server
func New(cfg Config, directory SessionDirectory, editorClient EditorClient, resultCache *cache.Cache, audit *AuditLogger, logger *slog.Logger) *Server {
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		server:      mcpServer,
		directory:   directory,
		editor:      editorClient,
		cache:       resultCache,
		auditLogger: audit,
		logger:      logger,
	}

	s.registerTools()

	return s
}

// registerTools registers all MCP tools with handlers
func (s *Server) registerTools() {
	suggestionTool := mcp.NewTool(toolSuggestion,
		mcp.WithDescription("Get a Copilot code suggestion for the given code"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Code to complete"),
		),
		mcp.WithString("language",
			mcp.Description("Programming language of the code"),
		),
		mcp.WithString("context",
			mcp.Description("Additional context for the suggestion"),
		),
		mcp.WithString("session_id",
			mcp.Description("WhatsApp session to act for; defaults to the first ready session"),
		),
	)
	s.server.AddTool(suggestionTool, s.handleSuggestion)

	explainTool := mcp.NewTool(toolExplainCode,
		mcp.WithDescription("Explain what the given code does"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Code to explain"),
		),
		mcp.WithString("language",
			mcp.Description("Programming language of the code"),
		),
		mcp.WithString("session_id",
			mcp.Description("WhatsApp session to act for; defaults to the first ready session"),
		),
	)
	s.server.AddTool(explainTool, s.handleExplain)

	testsTool := mcp.NewTool(toolGenerateTests,
		mcp.WithDescription("Generate tests for the given code"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Code to generate tests for"),
		),
		mcp.WithString("language",
			mcp.Description("Programming language of the code"),
		),
		mcp.WithString("framework",
			mcp.Description("Test framework to use"),
		),
		mcp.WithString("session_id",
			mcp.Description("WhatsApp session to act for; defaults to the first ready session"),
		),
	)
	s.server.AddTool(testsTool, s.handleGenerateTests)

	openTool := mcp.NewTool(toolOpenFile,
		mcp.WithDescription("Open a file in the editor"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path to open"),
		),
		mcp.WithNumber("line",
			mcp.Description("Line to jump to"),
		),
		mcp.WithString("session_id",
			mcp.Description("WhatsApp session to act for; defaults to the first ready session"),
		),
	)
	s.server.AddTool(openTool, s.handleOpenFile)

	contextTool := mcp.NewTool(toolWorkspaceContext,
		mcp.WithDescription("Get the current editor workspace context"),
		mcp.WithString("session_id",
			mcp.Description("WhatsApp session to act for; defaults to the first ready session"),
		),
	)
	s.server.AddTool(contextTool, s.handleWorkspaceContext)

	applyTool := mcp.NewTool(toolApplySuggestion,
		mcp.WithDescription("Apply a suggestion to a file in the editor"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File to apply the suggestion to"),
		),
		mcp.WithString("suggestion",
			mcp.Required(),
			mcp.Description("Suggestion text to apply"),
		),
		mcp.WithString("session_id",
			mcp.Description("WhatsApp session to act for; defaults to the first ready session"),
		),
	)
	s.server.AddTool(applyTool, s.handleApplySuggestion)

	activeSessionTool := mcp.NewTool(toolActiveSession,
		mcp.WithDescription("List ready WhatsApp sessions and aggregate session stats"),
	)
	s.server.AddTool(activeSessionTool, s.handleActiveSession)
}
