package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

// PostgresProfileRepository implements domain.ProfileRepository using PostgreSQL
type PostgresProfileRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProfileRepository creates a new profile repository
func NewPostgresProfileRepository(db *sql.DB, logger *slog.Logger) *PostgresProfileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProfileRepository{db: db, logger: logger}
}

// GetByUserID retrieves a profile by identity id
func (r *PostgresProfileRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT user_id, email, display_name, account_type, profile_complete, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`
	var (
		p           domain.Profile
		accountType string
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.Email,
		&p.DisplayName,
		&accountType,
		&p.ProfileComplete,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to get profile",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.AccountType = domain.AccountType(accountType)
	return &p, nil
}

// Deactivate marks the profile deactivated and drops all of its role bindings.
func (r *PostgresProfileRepository) Deactivate(ctx context.Context, userID string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET account_type = 'deactivated', updated_at = now()
			WHERE user_id = $1
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to deactivate profile: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if rows == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to remove role bindings: %w", err)
		}
		return nil
	})
}

func insertProfile(ctx context.Context, q querier, p domain.Profile) error {
	query := `
		INSERT INTO profiles (user_id, email, display_name, account_type, profile_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`
	if _, err := q.ExecContext(ctx, query,
		p.UserID,
		p.Email,
		p.DisplayName,
		string(p.AccountType),
		p.ProfileComplete,
		p.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert profile: %w", mapPgError(err))
	}
	return nil
}
