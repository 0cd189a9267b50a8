// Package command parses chat messages into bridge commands. Commands are
// Portuguese verbs, optionally prefixed with "/" or "!", followed by the
// free-form argument: "completa def soma(a, b):".
package command

import (
	"errors"
	"strings"
)

// Kind identifies one bridge command.
type Kind string

const (
	KindComplete Kind = "completa"
	KindExplain  Kind = "explica"
	KindTest     Kind = "testa"
	KindOpen     Kind = "abre"
	KindContext  Kind = "contexto"
	KindApply    Kind = "aplica"
	KindStatus   Kind = "status"
)

// ErrUnknownCommand reports that the message does not start with a known
// command verb. Plain conversation is not an error case for callers; they
// match on this sentinel to ignore the message.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one parsed chat command.
type Command struct {
	Kind     Kind
	Argument string
}

// kinds maps the verb to its Kind. Lookup is case-insensitive.
var kinds = map[string]Kind{
	string(KindComplete): KindComplete,
	string(KindExplain):  KindExplain,
	string(KindTest):     KindTest,
	string(KindOpen):     KindOpen,
	string(KindContext):  KindContext,
	string(KindApply):    KindApply,
	string(KindStatus):   KindStatus,
}

// toolNames maps each command to the MCP tool it invokes.
var toolNames = map[Kind]string{
	KindComplete: "get_copilot_suggestion",
	KindExplain:  "explain_code",
	KindTest:     "generate_tests",
	KindOpen:     "open_file",
	KindContext:  "get_workspace_context",
	KindApply:    "apply_suggestion",
	KindStatus:   "get_active_session",
}

// Parse extracts a command from a chat message. The verb may carry a "/" or
// "!" prefix; everything after it becomes the argument, original casing and
// line breaks preserved.
func Parse(message string) (Command, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Command{}, ErrUnknownCommand
	}

	verb := trimmed
	argument := ""
	if i := strings.IndexAny(trimmed, " \t\n"); i >= 0 {
		verb = trimmed[:i]
		argument = strings.TrimSpace(trimmed[i+1:])
	}

	verb = strings.TrimLeft(verb, "/!")
	kind, ok := kinds[strings.ToLower(verb)]
	if !ok {
		return Command{}, ErrUnknownCommand
	}

	return Command{Kind: kind, Argument: argument}, nil
}

// RequiresArgument reports whether the command is meaningless without one.
func (k Kind) RequiresArgument() bool {
	switch k {
	case KindComplete, KindExplain, KindTest, KindOpen, KindApply:
		return true
	default:
		return false
	}
}

// ToolName returns the MCP tool the command invokes.
func (k Kind) ToolName() string {
	return toolNames[k]
}
