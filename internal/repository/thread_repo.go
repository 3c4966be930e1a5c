package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
)

// ThreadRepository provides data access for conversation threads.
type ThreadRepository struct {
	db    *db.DB
	jobs  *JobRepository
	steps *StepRepository
}

// NewThreadRepository creates a new ThreadRepository.
func NewThreadRepository(database *db.DB) *ThreadRepository {
	return &ThreadRepository{
		db:    database,
		jobs:  NewJobRepository(database),
		steps: NewStepRepository(database),
	}
}

// Create inserts a new thread into the database.
func (r *ThreadRepository) Create(ctx context.Context, thread *model.Thread) error {
	query := r.db.Rebind(`
		INSERT INTO threads (id, profile_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		thread.ID.String(),
		thread.ProfileID.String(),
		thread.Name,
		thread.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}

	return nil
}

// GetByID retrieves a thread by its ID.
func (r *ThreadRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Thread, error) {
	query := r.db.Rebind(`
		SELECT id, profile_id, name, created_at
		FROM threads
		WHERE id = ?
	`)

	thread := &model.Thread{}
	var threadID, profileID string

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&threadID,
		&profileID,
		&thread.Name,
		&thread.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	if thread.ID, err = uuid.Parse(threadID); err != nil {
		return nil, fmt.Errorf("invalid thread id: %w", err)
	}
	if thread.ProfileID, err = uuid.Parse(profileID); err != nil {
		return nil, fmt.Errorf("invalid profile id: %w", err)
	}

	return thread, nil
}

// List retrieves all threads for a profile, newest first.
func (r *ThreadRepository) List(ctx context.Context, profileID uuid.UUID) ([]*model.Thread, error) {
	query := r.db.Rebind(`
		SELECT id, profile_id, name, created_at
		FROM threads
		WHERE profile_id = ?
		ORDER BY created_at DESC
	`)

	rows, err := r.db.QueryContext(ctx, query, profileID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []*model.Thread
	for rows.Next() {
		thread := &model.Thread{}
		var id, pid string
		if err := rows.Scan(&id, &pid, &thread.Name, &thread.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		if thread.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid thread id: %w", err)
		}
		if thread.ProfileID, err = uuid.Parse(pid); err != nil {
			return nil, fmt.Errorf("invalid profile id: %w", err)
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}

	return threads, nil
}

// History merges a thread's job inputs and persisted steps into a single
// replayable transcript sorted by created_at ascending.
func (r *ThreadRepository) History(ctx context.Context, threadID uuid.UUID) ([]model.HistoryEntry, error) {
	jobs, err := r.jobs.List(ctx, model.JobFilter{ThreadID: &threadID})
	if err != nil {
		return nil, err
	}

	var entries []model.HistoryEntry
	for _, job := range jobs {
		entries = append(entries, model.HistoryEntry{
			Role:      "user",
			Content:   job.Input,
			Type:      "user",
			ThreadID:  threadID,
			CreatedAt: job.CreatedAt,
		})

		jobID := job.ID
		steps, err := r.steps.List(ctx, model.StepFilter{JobID: &jobID})
		if err != nil {
			return nil, err
		}
		for _, step := range steps {
			entryType := "result"
			content := step.Content
			if step.Tool != "" {
				entryType = "tool"
				content = step.Tool
			}
			entries = append(entries, model.HistoryEntry{
				Role:      step.Role,
				Content:   content,
				Type:      entryType,
				ThreadID:  threadID,
				CreatedAt: step.CreatedAt,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}
