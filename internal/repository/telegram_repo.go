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

// TelegramUserRepository provides data access for Telegram chat links.
type TelegramUserRepository struct {
	db *db.DB
}

// NewTelegramUserRepository creates a new TelegramUserRepository.
func NewTelegramUserRepository(database *db.DB) *TelegramUserRepository {
	return &TelegramUserRepository{db: database}
}

// Upsert links a Telegram user to a profile, updating the existing row if
// the Telegram user is already known.
func (r *TelegramUserRepository) Upsert(ctx context.Context, user *model.TelegramUser) error {
	updateQuery := r.db.Rebind(`
		UPDATE telegram_users
		SET chat_id = ?, username = ?, profile_id = ?, registered = ?
		WHERE telegram_user_id = ?
	`)

	res, err := r.db.ExecContext(ctx, updateQuery,
		user.ChatID,
		user.Username,
		user.ProfileID.String(),
		user.Registered,
		user.TelegramUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update telegram user: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	insertQuery := r.db.Rebind(`
		INSERT INTO telegram_users (id, telegram_user_id, chat_id, username, profile_id, registered, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.ExecContext(ctx, insertQuery,
		user.ID.String(),
		user.TelegramUserID,
		user.ChatID,
		user.Username,
		user.ProfileID.String(),
		user.Registered,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create telegram user: %w", err)
	}

	return nil
}

// SetRegistered flips the registered flag for a Telegram user. The stored
// profile link is left intact, so re-registering restores delivery without
// a new /start. Unknown users are a no-op.
func (r *TelegramUserRepository) SetRegistered(ctx context.Context, telegramUserID string, registered bool) error {
	query := r.db.Rebind(`
		UPDATE telegram_users
		SET registered = ?
		WHERE telegram_user_id = ?
	`)

	if _, err := r.db.ExecContext(ctx, query, registered, telegramUserID); err != nil {
		return fmt.Errorf("failed to update telegram user: %w", err)
	}
	return nil
}

// ListRegisteredByProfile retrieves all registered Telegram links for a profile.
func (r *TelegramUserRepository) ListRegisteredByProfile(ctx context.Context, profileID uuid.UUID) ([]*model.TelegramUser, error) {
	query := r.db.Rebind(`
		SELECT id, telegram_user_id, chat_id, username, profile_id, registered, created_at
		FROM telegram_users
		WHERE profile_id = ? AND registered = ?
	`)

	rows, err := r.db.QueryContext(ctx, query, profileID.String(), true)
	if err != nil {
		return nil, fmt.Errorf("failed to list telegram users: %w", err)
	}
	defer rows.Close()

	var users []*model.TelegramUser
	for rows.Next() {
		user := &model.TelegramUser{}
		var id, pid string
		var username sql.NullString

		err := rows.Scan(
			&id,
			&user.TelegramUserID,
			&user.ChatID,
			&username,
			&pid,
			&user.Registered,
			&user.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan telegram user: %w", err)
		}

		if user.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid telegram user id: %w", err)
		}
		if user.ProfileID, err = uuid.Parse(pid); err != nil {
			return nil, fmt.Errorf("invalid profile id: %w", err)
		}
		user.Username = username.String

		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating telegram users: %w", err)
	}

	return users, nil
}
