// Package pipeline defines the agent pipeline contract and the streaming
// executor that turns a provider's token stream into structured events.
package pipeline

import (
	"context"
	"time"
)

// EventType classifies a pipeline event.
type EventType string

const (
	EventTypeToken  EventType = "token"
	EventTypeTool   EventType = "tool"
	EventTypeResult EventType = "result"
	EventTypeEnd    EventType = "end"
)

// Event is one structured step/token/result emitted by a running pipeline.
type Event struct {
	Type       EventType `json:"type"`
	Role       string    `json:"role,omitempty"`
	Content    string    `json:"content,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	ToolInput  string    `json:"tool_input,omitempty"`
	ToolOutput string    `json:"tool_output,omitempty"`
	Thought    string    `json:"thought,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryMessage is one prior conversation turn passed to the pipeline.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a pipeline needs for one invocation.
type Request struct {
	Persona string
	History []HistoryMessage
	Input   string
}

// Pipeline executes one agent invocation, yielding events on the returned
// channel in the order they are produced. The channel is closed when the
// stream terminates; a non-nil error on the error channel means the stream
// failed after the events delivered so far.
type Pipeline interface {
	Stream(ctx context.Context, req Request) (<-chan Event, <-chan error)
}
