package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
)

// CrewRepository provides data access for crews.
type CrewRepository struct {
	db *db.DB
}

// NewCrewRepository creates a new CrewRepository.
func NewCrewRepository(database *db.DB) *CrewRepository {
	return &CrewRepository{db: database}
}

// Create inserts a new crew into the database.
func (r *CrewRepository) Create(ctx context.Context, crew *model.Crew) error {
	query := r.db.Rebind(`
		INSERT INTO crews (id, profile_id, name, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		crew.ID.String(),
		crew.ProfileID.String(),
		crew.Name,
		crew.Description,
		crew.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create crew: %w", err)
	}

	return nil
}

// GetByID retrieves a crew by its ID.
func (r *CrewRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Crew, error) {
	query := r.db.Rebind(`
		SELECT id, profile_id, name, description, created_at
		FROM crews
		WHERE id = ?
	`)

	crew := &model.Crew{}
	var crewID, profileID string
	var description sql.NullString

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&crewID,
		&profileID,
		&crew.Name,
		&description,
		&crew.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrCrewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crew: %w", err)
	}

	if crew.ID, err = uuid.Parse(crewID); err != nil {
		return nil, fmt.Errorf("invalid crew id: %w", err)
	}
	if crew.ProfileID, err = uuid.Parse(profileID); err != nil {
		return nil, fmt.Errorf("invalid profile id: %w", err)
	}
	if description.Valid {
		crew.Description = description.String
	}

	return crew, nil
}

// ListByProfile retrieves every crew owned by a profile.
func (r *CrewRepository) ListByProfile(ctx context.Context, profileID uuid.UUID) ([]*model.Crew, error) {
	query := r.db.Rebind(`
		SELECT id, profile_id, name, description, created_at
		FROM crews
		WHERE profile_id = ?
		ORDER BY created_at DESC
	`)

	rows, err := r.db.QueryContext(ctx, query, profileID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list crews: %w", err)
	}
	defer rows.Close()

	var crews []*model.Crew
	for rows.Next() {
		crew := &model.Crew{}
		var id, pid string
		var description sql.NullString
		if err := rows.Scan(&id, &pid, &crew.Name, &description, &crew.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan crew: %w", err)
		}
		if crew.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid crew id: %w", err)
		}
		if crew.ProfileID, err = uuid.Parse(pid); err != nil {
			return nil, fmt.Errorf("invalid profile id: %w", err)
		}
		if description.Valid {
			crew.Description = description.String
		}
		crews = append(crews, crew)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating crews: %w", err)
	}

	return crews, nil
}
