// Package bridge turns incoming WhatsApp messages into editor actions and
// formats the answers as chat replies. It sits between the session layer's
// message handler and the editor client; plain conversation passes through
// untouched.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/codebridge/wabridge/internal/cache"
	"github.com/codebridge/wabridge/internal/chat"
	"github.com/codebridge/wabridge/internal/command"
	"github.com/codebridge/wabridge/internal/editor"
	"github.com/codebridge/wabridge/internal/session"
)

// Directory is the slice of the session directory the status command reads.
type Directory interface {
	Stats() session.Stats
	GetSessionState(id string) (session.AuthState, error)
}

// EditorClient is the slice of the editor client the responder calls.
type EditorClient interface {
	Suggest(ctx context.Context, req editor.SuggestionRequest) (*editor.SuggestionResponse, error)
	Explain(ctx context.Context, req editor.ExplainRequest) (*editor.ExplainResponse, error)
	GenerateTests(ctx context.Context, req editor.TestsRequest) (*editor.TestsResponse, error)
	OpenFile(ctx context.Context, req editor.OpenFileRequest) error
	ApplySuggestion(ctx context.Context, req editor.ApplyRequest) error
	GetWorkspaceContext(ctx context.Context) (*editor.WorkspaceContext, error)
}

// Responder executes chat commands against the editor.
type Responder struct {
	directory Directory
	editor    EditorClient
	cache     *cache.Cache
	logger    *slog.Logger
}

// New creates a responder.
func New(directory Directory, editorClient EditorClient, resultCache *cache.Cache, logger *slog.Logger) *Responder {
	return &Responder{
		directory: directory,
		editor:    editorClient,
		cache:     resultCache,
		logger:    logger,
	}
}

// Handle implements session.MessageHandler. Messages that are not commands
// produce no reply; command failures reply with the problem so the user is
// never left waiting.
func (r *Responder) Handle(ctx context.Context, sessionID string, msg chat.Message) (string, bool) {
	cmd, err := command.Parse(msg.Body)
	if err != nil {
		if !errors.Is(err, command.ErrUnknownCommand) {
			r.logger.Warn("Failed to parse message", "session_id", sessionID, "error", err)
		}
		return "", false
	}

	r.logger.Info("Command received",
		"session_id", sessionID,
		"command", cmd.Kind,
		"from", msg.From,
	)

	if cmd.Kind.RequiresArgument() && cmd.Argument == "" {
		return fmt.Sprintf("O comando %s precisa de um argumento. Exemplo: %s def soma(a, b):",
			cmd.Kind, cmd.Kind), true
	}

	reply, err := r.execute(ctx, sessionID, cmd)
	if err != nil {
		r.logger.Error("Command failed",
			"session_id", sessionID,
			"command", cmd.Kind,
			"error", err,
		)
		return fmt.Sprintf("Não consegui executar %s: %v", cmd.Kind, err), true
	}
	return reply, true
}

func (r *Responder) execute(ctx context.Context, sessionID string, cmd command.Command) (string, error) {
	switch cmd.Kind {
	case command.KindComplete:
		return r.cache.GetOrSet("suggestion", cmd.Argument, func() (string, error) {
			resp, err := r.editor.Suggest(ctx, editor.SuggestionRequest{Code: cmd.Argument})
			if err != nil {
				return "", err
			}
			return resp.Suggestion, nil
		})

	case command.KindExplain:
		return r.cache.GetOrSet("explanation", cmd.Argument, func() (string, error) {
			resp, err := r.editor.Explain(ctx, editor.ExplainRequest{Code: cmd.Argument})
			if err != nil {
				return "", err
			}
			return resp.Explanation, nil
		})

	case command.KindTest:
		return r.cache.GetOrSet("tests", cmd.Argument, func() (string, error) {
			resp, err := r.editor.GenerateTests(ctx, editor.TestsRequest{Code: cmd.Argument})
			if err != nil {
				return "", err
			}
			return resp.Tests, nil
		})

	case command.KindOpen:
		path, line := splitLineSuffix(cmd.Argument)
		if err := r.editor.OpenFile(ctx, editor.OpenFileRequest{Path: path, Line: line}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Abri %s no editor.", path), nil

	case command.KindContext:
		wc, err := r.editor.GetWorkspaceContext(ctx)
		if err != nil {
			return "", err
		}
		return formatWorkspace(wc), nil

	case command.KindApply:
		// "aplica <arquivo> <sugestão>"
		path, suggestion := splitFirstWord(cmd.Argument)
		if suggestion == "" {
			return "Use: aplica <arquivo> <sugestão>", nil
		}
		if err := r.editor.ApplySuggestion(ctx, editor.ApplyRequest{Path: path, Suggestion: suggestion}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Apliquei a sugestão em %s.", path), nil

	case command.KindStatus:
		return r.formatStatus(sessionID), nil
	}

	return "", fmt.Errorf("unhandled command %s", cmd.Kind)
}

func (r *Responder) formatStatus(sessionID string) string {
	var b strings.Builder
	stats := r.directory.Stats()
	fmt.Fprintf(&b, "Sessões: %d no total, %d conectadas, %d autenticadas.",
		stats.Total, stats.Connected, stats.Authenticated)

	if state, err := r.directory.GetSessionState(sessionID); err == nil {
		fmt.Fprintf(&b, "\nEsta sessão: %s", state.ConnectionState)
		if state.PhoneNumber != "" {
			fmt.Fprintf(&b, " (%s)", state.PhoneNumber)
		}
	}
	return b.String()
}

func formatWorkspace(wc *editor.WorkspaceContext) string {
	var b strings.Builder
	b.WriteString("Contexto do editor:")
	if wc.Workspace != "" {
		fmt.Fprintf(&b, "\nWorkspace: %s", wc.Workspace)
	}
	if wc.ActiveFile != "" {
		fmt.Fprintf(&b, "\nArquivo ativo: %s", wc.ActiveFile)
		if wc.Language != "" {
			fmt.Fprintf(&b, " (%s)", wc.Language)
		}
	}
	if len(wc.OpenFiles) > 0 {
		fmt.Fprintf(&b, "\nAbertos: %s", strings.Join(wc.OpenFiles, ", "))
	}
	if wc.ActiveFile == "" && len(wc.OpenFiles) == 0 {
		b.WriteString("\nNenhum arquivo aberto.")
	}
	return b.String()
}

// splitLineSuffix splits "path:42" into path and line; a missing or
// non-numeric suffix leaves line at zero.
func splitLineSuffix(arg string) (string, int) {
	i := strings.LastIndex(arg, ":")
	if i <= 0 {
		return arg, 0
	}
	line, err := strconv.Atoi(arg[i+1:])
	if err != nil || line < 1 {
		return arg, 0
	}
	return arg[:i], line
}

func splitFirstWord(arg string) (string, string) {
	i := strings.IndexAny(arg, " \t\n")
	if i < 0 {
		return arg, ""
	}
	return arg[:i], strings.TrimSpace(arg[i+1:])
}
