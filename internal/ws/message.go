package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/model"
)

// InboundType represents the type of a client -> server message.
type InboundType string

const (
	// InboundTypeHistory requests a replay of the thread's past conversation.
	InboundTypeHistory InboundType = "history"

	// InboundTypeMessage triggers a new job on a thread socket.
	InboundTypeMessage InboundType = "message"

	// InboundTypeChatMessage triggers a new job on a crew socket.
	InboundTypeChatMessage InboundType = "chat_message"
)

// InboundMessage is a client -> server WebSocket message.
type InboundMessage struct {
	Type     InboundType `json:"type"`
	Content  string      `json:"content,omitempty"`
	Message  string      `json:"message,omitempty"`
	AgentID  string      `json:"agent_id,omitempty"`
	ThreadID string      `json:"thread_id,omitempty"`
}

// Text returns the user input carried by the message. Thread sockets use
// the content field, crew sockets use message; either is accepted.
func (m *InboundMessage) Text() string {
	if m.Content != "" {
		return m.Content
	}
	return m.Message
}

// OutboundType represents the type of a server -> client message.
type OutboundType string

const (
	OutboundTypeStream     OutboundType = "stream"
	OutboundTypeJobStarted OutboundType = "job_started"
	OutboundTypeResult     OutboundType = "result"
	OutboundTypeError      OutboundType = "error"
	OutboundTypeHistory    OutboundType = "history"
)

// StreamMessage is one incremental pipeline event forwarded to clients.
type StreamMessage struct {
	Type         OutboundType `json:"type"`
	StreamType   string       `json:"stream_type,omitempty"`
	Role         string       `json:"role,omitempty"`
	Content      string       `json:"content,omitempty"`
	Tool         string       `json:"tool,omitempty"`
	ToolInput    string       `json:"tool_input,omitempty"`
	Result       string       `json:"result,omitempty"`
	Thought      string       `json:"thought,omitempty"`
	Status       string       `json:"status,omitempty"`
	ThreadID     string       `json:"thread_id,omitempty"`
	AgentID      string       `json:"agent_id,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	JobStartedAt *time.Time   `json:"job_started_at,omitempty"`
}

// JobStartedMessage acknowledges that a job was accepted and assigned an ID.
type JobStartedMessage struct {
	Type  OutboundType `json:"type"`
	JobID uuid.UUID    `json:"job_id"`
}

// ErrorMessage reports an in-band error without closing the socket.
type ErrorMessage struct {
	Type    OutboundType `json:"type"`
	Message string       `json:"message"`
}

// ResultMessage carries the terminal result of a job.
type ResultMessage struct {
	Type    OutboundType `json:"type"`
	Content string       `json:"content"`
}

// HistoryMessage replays a thread's merged conversation history.
type HistoryMessage struct {
	Type    OutboundType         `json:"type"`
	Entries []model.HistoryEntry `json:"history"`
}

// NewErrorMessage builds the fixed error payload used by BroadcastError.
func NewErrorMessage(text string) ErrorMessage {
	return ErrorMessage{Type: OutboundTypeError, Message: text}
}
