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

// PostgresSubscriptionRepository implements domain.SubscriptionRepository using PostgreSQL
type PostgresSubscriptionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSubscriptionRepository creates a new subscription repository
func NewPostgresSubscriptionRepository(db *sql.DB, logger *slog.Logger) *PostgresSubscriptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSubscriptionRepository{db: db, logger: logger}
}

// FindActivePlanByName matches the plan name case-insensitively
func (r *PostgresSubscriptionRepository) FindActivePlanByName(ctx context.Context, name string) (*domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, is_active
		FROM subscription_plans
		WHERE lower(name) = lower($1) AND is_active
		LIMIT 1
	`, name).Scan(&plan.ID, &plan.Name, &plan.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return &plan, nil
}

// CreateIfNoneActive serialises per user with a transaction-scoped advisory
// lock, then inserts only when no active, unexpired subscription exists.
func (r *PostgresSubscriptionRepository) CreateIfNoneActive(ctx context.Context, b *domain.SubscriptionBinding) (bool, error) {
	var inserted bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.UserID); err != nil {
			return fmt.Errorf("failed to lock subscriptions: %w", err)
		}
		result, err := tx.ExecContext(ctx, `
			INSERT INTO user_subscriptions (id, user_id, plan_id, status, period_start, period_end)
			SELECT $1, $2, $3, $4, $5, $6
			WHERE NOT EXISTS (
				SELECT 1 FROM user_subscriptions
				WHERE user_id = $2 AND status = 'active' AND period_end > $5
			)
		`, b.ID, b.UserID, b.PlanID, string(b.Status), b.PeriodStart, b.PeriodEnd)
		if err != nil {
			return fmt.Errorf("failed to insert subscription: %w", mapPgError(err))
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted = rows == 1
		return nil
	})
	return inserted, err
}

// ExpireLapsed marks active subscriptions past their period end as expired
func (r *PostgresSubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_subscriptions
		SET status = 'expired'
		WHERE status = 'active' AND period_end <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return result.RowsAffected()
}
