package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Job represents one user-turn execution of an agent pipeline.
// The record is created when a user message triggers execution and updated
// once with the final result when the pipeline completes.
type Job struct {
	ID        uuid.UUID  `json:"id"`
	ThreadID  uuid.UUID  `json:"threadId"`
	ProfileID uuid.UUID  `json:"profileId"`
	AgentID   *uuid.UUID `json:"agentId,omitempty"`
	Input     string     `json:"input"`
	Result    string     `json:"result,omitempty"`
	Tokens    int64      `json:"tokens,omitempty"`
	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Step represents one agent-pipeline event tied to a job. Steps are
// append-only: they are created incrementally as the pipeline streams and
// never updated.
type Step struct {
	ID         uuid.UUID  `json:"id"`
	JobID      uuid.UUID  `json:"jobId"`
	ProfileID  uuid.UUID  `json:"profileId"`
	AgentID    *uuid.UUID `json:"agentId,omitempty"`
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Tool       string     `json:"tool,omitempty"`
	ToolInput  string     `json:"toolInput,omitempty"`
	ToolOutput string     `json:"toolOutput,omitempty"`
	Thought    string     `json:"thought,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// JobFilter narrows job list queries.
type JobFilter struct {
	ThreadID  *uuid.UUID
	ProfileID *uuid.UUID
	Status    *JobStatus
}

// StepFilter narrows step list queries.
type StepFilter struct {
	JobID     *uuid.UUID
	ProfileID *uuid.UUID
}

// CreateJobRequest represents a request to start a new job.
type CreateJobRequest struct {
	ThreadID  uuid.UUID  `json:"threadId"`
	ProfileID uuid.UUID  `json:"profileId"`
	AgentID   *uuid.UUID `json:"agentId,omitempty"`
	Input     string     `json:"input" binding:"required"`
}

// Validate validates the create job request.
func (r *CreateJobRequest) Validate() error {
	if r.Input == "" {
		return ErrInputRequired
	}
	if r.ThreadID == uuid.Nil {
		return ErrThreadRequired
	}
	return nil
}
