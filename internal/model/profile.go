package model

import (
	"time"

	"github.com/google/uuid"
)

// Profile represents an end-user account.
type Profile struct {
	ID                   uuid.UUID `json:"id"`
	Email                string    `json:"email,omitempty"`
	Username             string    `json:"username,omitempty"`
	AssignedAgentAddress string    `json:"assignedAgentAddress,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Agent represents a configured LLM agent persona owned by a profile.
type Agent struct {
	ID         uuid.UUID `json:"id"`
	ProfileID  uuid.UUID `json:"profileId"`
	Name       string    `json:"name"`
	Role       string    `json:"role,omitempty"`
	Goal       string    `json:"goal,omitempty"`
	Backstory  string    `json:"backstory,omitempty"`
	AgentTools []string  `json:"agentTools,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Crew represents a named collective of agents that can be triggered as one
// unit from a crew-oriented socket.
type Crew struct {
	ID          uuid.UUID `json:"id"`
	ProfileID   uuid.UUID `json:"profileId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Task represents a scheduled prompt executed on a cron expression.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	ProfileID   uuid.UUID  `json:"profileId"`
	AgentID     *uuid.UUID `json:"agentId,omitempty"`
	ThreadID    uuid.UUID  `json:"threadId"`
	Name        string     `json:"name"`
	Prompt      string     `json:"prompt"`
	Cron        string     `json:"cron"`
	IsScheduled bool       `json:"isScheduled"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TelegramUser links a Telegram chat to a profile for result relay.
type TelegramUser struct {
	ID             uuid.UUID `json:"id"`
	TelegramUserID string    `json:"telegramUserId"`
	ChatID         int64     `json:"chatId"`
	Username       string    `json:"username,omitempty"`
	ProfileID      uuid.UUID `json:"profileId"`
	Registered     bool      `json:"registered"`
	CreatedAt      time.Time `json:"createdAt"`
}
