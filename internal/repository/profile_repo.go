package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
)

// ProfileRepository provides data access for user profiles.
type ProfileRepository struct {
	db *db.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(database *db.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// Create inserts a new profile into the database.
func (r *ProfileRepository) Create(ctx context.Context, profile *model.Profile) error {
	query := r.db.Rebind(`
		INSERT INTO profiles (id, email, username, assigned_agent_address, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		profile.ID.String(),
		profile.Email,
		profile.Username,
		profile.AssignedAgentAddress,
		profile.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	query := r.db.Rebind(`
		SELECT id, email, username, assigned_agent_address, created_at
		FROM profiles
		WHERE id = ?
	`)

	profile := &model.Profile{}
	var profileID string
	var email, username, address sql.NullString

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&profileID,
		&email,
		&username,
		&address,
		&profile.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if profile.ID, err = uuid.Parse(profileID); err != nil {
		return nil, fmt.Errorf("invalid profile id: %w", err)
	}
	profile.Email = email.String
	profile.Username = username.String
	profile.AssignedAgentAddress = address.String

	return profile, nil
}
