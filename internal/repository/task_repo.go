package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
)

// TaskRepository provides data access for scheduled tasks.
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

// Create inserts a new task into the database.
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	query := r.db.Rebind(`
		INSERT INTO tasks (id, profile_id, agent_id, thread_id, name, prompt, cron, is_scheduled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		task.ID.String(),
		task.ProfileID.String(),
		uuidPtrToNull(task.AgentID),
		task.ThreadID.String(),
		task.Name,
		task.Prompt,
		task.Cron,
		task.IsScheduled,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// ListScheduled retrieves all tasks with scheduling enabled.
func (r *TaskRepository) ListScheduled(ctx context.Context) ([]*model.Task, error) {
	query := r.db.Rebind(`
		SELECT id, profile_id, agent_id, thread_id, name, prompt, cron, is_scheduled, created_at
		FROM tasks
		WHERE is_scheduled = ?
		ORDER BY created_at ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{}
		var id, profileID, threadID string
		var agentID sql.NullString

		err := rows.Scan(
			&id,
			&profileID,
			&agentID,
			&threadID,
			&task.Name,
			&task.Prompt,
			&task.Cron,
			&task.IsScheduled,
			&task.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		if task.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid task id: %w", err)
		}
		if task.ProfileID, err = uuid.Parse(profileID); err != nil {
			return nil, fmt.Errorf("invalid profile id: %w", err)
		}
		if task.ThreadID, err = uuid.Parse(threadID); err != nil {
			return nil, fmt.Errorf("invalid thread id: %w", err)
		}
		if agentID.Valid {
			parsed, err := uuid.Parse(agentID.String)
			if err != nil {
				return nil, fmt.Errorf("invalid agent id: %w", err)
			}
			task.AgentID = &parsed
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}
