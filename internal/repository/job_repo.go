// Package repository provides data access for orchestration records.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
)

// JobRepository provides data access for jobs.
type JobRepository struct {
	db *db.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(database *db.DB) *JobRepository {
	return &JobRepository{db: database}
}

// Create inserts a new job into the database.
func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	query := r.db.Rebind(`
		INSERT INTO jobs (id, thread_id, profile_id, agent_id, input, result, tokens, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		job.ID.String(),
		job.ThreadID.String(),
		job.ProfileID.String(),
		uuidPtrToNull(job.AgentID),
		job.Input,
		job.Result,
		job.Tokens,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	query := r.db.Rebind(`
		SELECT id, thread_id, profile_id, agent_id, input, result, tokens, status, created_at, updated_at
		FROM jobs
		WHERE id = ?
	`)

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// Finish records the final result of a job and transitions its status.
func (r *JobRepository) Finish(ctx context.Context, id uuid.UUID, result string, tokens int64, status model.JobStatus) error {
	query := r.db.Rebind(`
		UPDATE jobs
		SET result = ?, tokens = ?, status = ?, updated_at = ?
		WHERE id = ?
	`)

	res, err := r.db.ExecContext(ctx, query, result, tokens, status, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrJobNotFound
	}

	return nil
}

// List retrieves jobs matching the filter, oldest first.
func (r *JobRepository) List(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	query := `
		SELECT id, thread_id, profile_id, agent_id, input, result, tokens, status, created_at, updated_at
		FROM jobs
		WHERE 1=1
	`
	var args []any

	if filter.ThreadID != nil {
		query += " AND thread_id = ?"
		args = append(args, filter.ThreadID.String())
	}
	if filter.ProfileID != nil {
		query += " AND profile_id = ?"
		args = append(args, filter.ProfileID.String())
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var id, threadID, profileID string
	var agentID, result sql.NullString

	err := row.Scan(
		&id,
		&threadID,
		&profileID,
		&agentID,
		&job.Input,
		&result,
		&job.Tokens,
		&job.Status,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid job id: %w", err)
	}
	if job.ThreadID, err = uuid.Parse(threadID); err != nil {
		return nil, fmt.Errorf("invalid thread id: %w", err)
	}
	if job.ProfileID, err = uuid.Parse(profileID); err != nil {
		return nil, fmt.Errorf("invalid profile id: %w", err)
	}
	if agentID.Valid {
		parsed, err := uuid.Parse(agentID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid agent id: %w", err)
		}
		job.AgentID = &parsed
	}
	if result.Valid {
		job.Result = result.String
	}

	return job, nil
}

func uuidPtrToNull(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
