package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
)

// StepRepository provides data access for pipeline steps. Steps are
// append-only; there are no update or delete operations.
type StepRepository struct {
	db *db.DB
}

// NewStepRepository creates a new StepRepository.
func NewStepRepository(database *db.DB) *StepRepository {
	return &StepRepository{db: database}
}

// Create inserts a new step into the database.
func (r *StepRepository) Create(ctx context.Context, step *model.Step) error {
	query := r.db.Rebind(`
		INSERT INTO steps (id, job_id, profile_id, agent_id, role, content, tool, tool_input, tool_output, thought, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		step.ID.String(),
		step.JobID.String(),
		step.ProfileID.String(),
		uuidPtrToNull(step.AgentID),
		step.Role,
		step.Content,
		step.Tool,
		step.ToolInput,
		step.ToolOutput,
		step.Thought,
		step.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}

	return nil
}

// List retrieves steps matching the filter, ordered by created_at ascending.
func (r *StepRepository) List(ctx context.Context, filter model.StepFilter) ([]*model.Step, error) {
	query := `
		SELECT id, job_id, profile_id, agent_id, role, content, tool, tool_input, tool_output, thought, created_at
		FROM steps
		WHERE 1=1
	`
	var args []any

	if filter.JobID != nil {
		query += " AND job_id = ?"
		args = append(args, filter.JobID.String())
	}
	if filter.ProfileID != nil {
		query += " AND profile_id = ?"
		args = append(args, filter.ProfileID.String())
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*model.Step
	for rows.Next() {
		step := &model.Step{}
		var id, jobID, profileID string
		var agentID, content, tool, toolInput, toolOutput, thought sql.NullString

		err := rows.Scan(
			&id,
			&jobID,
			&profileID,
			&agentID,
			&step.Role,
			&content,
			&tool,
			&toolInput,
			&toolOutput,
			&thought,
			&step.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if step.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid step id: %w", err)
		}
		if step.JobID, err = uuid.Parse(jobID); err != nil {
			return nil, fmt.Errorf("invalid job id: %w", err)
		}
		if step.ProfileID, err = uuid.Parse(profileID); err != nil {
			return nil, fmt.Errorf("invalid profile id: %w", err)
		}
		if agentID.Valid {
			parsed, err := uuid.Parse(agentID.String)
			if err != nil {
				return nil, fmt.Errorf("invalid agent id: %w", err)
			}
			step.AgentID = &parsed
		}
		step.Content = content.String
		step.Tool = tool.String
		step.ToolInput = toolInput.String
		step.ToolOutput = toolOutput.String
		step.Thought = thought.String

		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}
