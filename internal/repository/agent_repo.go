package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
)

// AgentRepository provides data access for agent personas.
type AgentRepository struct {
	db *db.DB
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(database *db.DB) *AgentRepository {
	return &AgentRepository{db: database}
}

// Create inserts a new agent into the database.
func (r *AgentRepository) Create(ctx context.Context, agent *model.Agent) error {
	toolsJSON, err := json.Marshal(agent.AgentTools)
	if err != nil {
		return fmt.Errorf("failed to serialize agent tools: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO agents (id, profile_id, name, role, goal, backstory, agent_tools, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.ExecContext(ctx, query,
		agent.ID.String(),
		agent.ProfileID.String(),
		agent.Name,
		agent.Role,
		agent.Goal,
		agent.Backstory,
		string(toolsJSON),
		agent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	return nil
}

// GetByID retrieves an agent by its ID.
func (r *AgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Agent, error) {
	query := r.db.Rebind(`
		SELECT id, profile_id, name, role, goal, backstory, agent_tools, created_at
		FROM agents
		WHERE id = ?
	`)

	agent := &model.Agent{}
	var agentID, profileID string
	var role, goal, backstory, toolsJSON sql.NullString

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&agentID,
		&profileID,
		&agent.Name,
		&role,
		&goal,
		&backstory,
		&toolsJSON,
		&agent.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	if agent.ID, err = uuid.Parse(agentID); err != nil {
		return nil, fmt.Errorf("invalid agent id: %w", err)
	}
	if agent.ProfileID, err = uuid.Parse(profileID); err != nil {
		return nil, fmt.Errorf("invalid profile id: %w", err)
	}
	agent.Role = role.String
	agent.Goal = goal.String
	agent.Backstory = backstory.String
	if toolsJSON.Valid && toolsJSON.String != "" {
		if err := json.Unmarshal([]byte(toolsJSON.String), &agent.AgentTools); err != nil {
			return nil, fmt.Errorf("failed to parse agent tools: %w", err)
		}
	}

	return agent, nil
}
