package model

import (
	"time"

	"github.com/google/uuid"
)

// Thread represents a conversation between a profile and its agents.
type Thread struct {
	ID        uuid.UUID `json:"id"`
	ProfileID uuid.UUID `json:"profileId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryEntry is one row of a thread's replayable conversation history.
// Entries are produced by merging job inputs and persisted steps, sorted by
// CreatedAt ascending.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	ThreadID  uuid.UUID `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateThreadRequest represents a request to create a new thread.
type CreateThreadRequest struct {
	ProfileID uuid.UUID `json:"profileId"`
	Name      string    `json:"name"`
}
