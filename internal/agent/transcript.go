package agent

import (
	"context"
	"errors"
)

// ErrUnavailable marks failures to reach or initialize the agent, as opposed
// to errors raised while it was working.
var ErrUnavailable = errors.New("agent unavailable")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one tool invocation the agent made. Result is whatever the tool
// returned, as decoded JSON or raw text, and is nil when the transcript does
// not carry it.
type ToolCall struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result any            `json:"result,omitempty"`
}

// Message is one turn of a transcript. Tool messages answer the call named by
// ToolCallID; their Structured field holds an object result when the tool
// returned one.
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
}

type Transcript struct {
	Messages []Message `json:"messages"`
}

// FinalText is the content of the last message, or "" for an empty transcript.
func (t Transcript) FinalText() string {
	if len(t.Messages) == 0 {
		return ""
	}
	return t.Messages[len(t.Messages)-1].Content
}

// Consultation is what the agent is asked about one claim.
type Consultation struct {
	Tenant string
	Prompt string
	// Input is the normalized claim text the prompt embeds.
	Input string
}

type Consultant interface {
	Consult(ctx context.Context, c Consultation) (Transcript, error)
}

// ConsultFunc adapts a function to Consultant.
type ConsultFunc func(ctx context.Context, c Consultation) (Transcript, error)

func (f ConsultFunc) Consult(ctx context.Context, c Consultation) (Transcript, error) {
	return f(ctx, c)
}
