package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

// PostgresImpersonationRepository implements domain.ImpersonationRepository using PostgreSQL
type PostgresImpersonationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresImpersonationRepository creates a new impersonation session repository
func NewPostgresImpersonationRepository(db *sql.DB, logger *slog.Logger) *PostgresImpersonationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresImpersonationRepository{db: db, logger: logger}
}

// Activate deactivates prior sessions and inserts the new one atomically. The
// partial unique index on active sessions turns a concurrent Activate for the
// same admin into domain.ErrConflict.
func (r *PostgresImpersonationRepository) Activate(ctx context.Context, s *domain.ImpersonationSession) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE impersonation_sessions
			SET is_active = false
			WHERE super_admin_id = $1 AND is_active
		`, s.SuperAdminID); err != nil {
			return fmt.Errorf("failed to deactivate sessions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO impersonation_sessions (id, super_admin_id, target_hub_id, started_at, expires_at, is_active)
			VALUES ($1, $2, $3, $4, $5, true)
		`, s.ID, s.SuperAdminID, s.TargetHubID, s.StartedAt, s.ExpiresAt); err != nil {
			return fmt.Errorf("failed to insert session: %w", mapPgError(err))
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to activate impersonation session",
			slog.String("super_admin_id", s.SuperAdminID),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.IsActive = true
	return nil
}

// DeactivateAll ends every active session of superAdminID
func (r *PostgresImpersonationRepository) DeactivateAll(ctx context.Context, superAdminID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE impersonation_sessions
		SET is_active = false
		WHERE super_admin_id = $1 AND is_active
	`, superAdminID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return result.RowsAffected()
}

// FindActive returns the active, unexpired session or nil
func (r *PostgresImpersonationRepository) FindActive(ctx context.Context, superAdminID string, now time.Time) (*domain.ImpersonationSession, error) {
	var s domain.ImpersonationSession
	err := r.db.QueryRowContext(ctx, `
		SELECT id, super_admin_id, target_hub_id, started_at, expires_at, is_active
		FROM impersonation_sessions
		WHERE super_admin_id = $1 AND is_active AND expires_at > $2
		ORDER BY started_at DESC
		LIMIT 1
	`, superAdminID, now).Scan(&s.ID, &s.SuperAdminID, &s.TargetHubID, &s.StartedAt, &s.ExpiresAt, &s.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return &s, nil
}

// DeactivateExpired flips stale rows so they stop holding the active index.
func (r *PostgresImpersonationRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE impersonation_sessions
		SET is_active = false
		WHERE is_active AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired sessions: %w", err)
	}
	return result.RowsAffected()
}
