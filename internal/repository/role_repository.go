package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

// PostgresRoleRepository implements domain.RoleBindingRepository using PostgreSQL
type PostgresRoleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRoleRepository creates a new role binding repository
func NewPostgresRoleRepository(db *sql.DB, logger *slog.Logger) *PostgresRoleRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRoleRepository{db: db, logger: logger}
}

// ListByUser returns every binding held by userID
func (r *PostgresRoleRepository) ListByUser(ctx context.Context, userID string) ([]domain.RoleBinding, error) {
	query := `
		SELECT user_id, role, hub_id, created_at
		FROM user_roles
		WHERE user_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role bindings: %w", err)
	}
	defer rows.Close()

	var bindings []domain.RoleBinding
	for rows.Next() {
		var (
			b     domain.RoleBinding
			role  string
			hubID sql.NullString
		)
		if err := rows.Scan(&b.UserID, &role, &hubID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role binding: %w", err)
		}
		b.Role = domain.Role(role)
		b.HubID = stringPtr(hubID)
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// Insert is idempotent; an existing binding is left untouched.
func (r *PostgresRoleRepository) Insert(ctx context.Context, binding domain.RoleBinding) error {
	if err := insertRoleBinding(ctx, r.db, binding); err != nil {
		r.logger.Error("failed to insert role binding",
			slog.String("binding", binding.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func insertRoleBinding(ctx context.Context, q querier, binding domain.RoleBinding) error {
	query := `
		INSERT INTO user_roles (user_id, role, hub_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, binding.UserID, string(binding.Role), nullString(binding.HubID)); err != nil {
		return fmt.Errorf("failed to insert role binding: %w", mapPgError(err))
	}
	return nil
}

// Delete removes one binding. A missing binding returns domain.ErrNotFound.
func (r *PostgresRoleRepository) Delete(ctx context.Context, binding domain.RoleBinding) error {
	query := `
		DELETE FROM user_roles
		WHERE user_id = $1 AND role = $2 AND COALESCE(hub_id, '') = COALESCE($3, '')
	`
	result, err := r.db.ExecContext(ctx, query, binding.UserID, string(binding.Role), nullString(binding.HubID))
	if err != nil {
		return fmt.Errorf("failed to delete role binding: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
