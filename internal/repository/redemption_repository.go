package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

// PostgresRedemptionRepository implements domain.RedemptionRepository using PostgreSQL
type PostgresRedemptionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRedemptionRepository creates a new redemption repository
func NewPostgresRedemptionRepository(db *sql.DB, logger *slog.Logger) *PostgresRedemptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRedemptionRepository{db: db, logger: logger}
}

// Redeem consumes the invite, then inserts the profile and role binding when
// present. Nothing is written unless every step succeeds.
func (r *PostgresRedemptionRepository) Redeem(ctx context.Context, rec domain.RedemptionRecord) (*domain.Invite, error) {
	var invite *domain.Invite
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		invite, err = markInviteUsed(ctx, tx, rec.Code, rec.UserID, rec.Now)
		if err != nil {
			return err
		}
		if rec.Profile != nil {
			if err := insertProfile(ctx, tx, *rec.Profile); err != nil {
				return err
			}
		}
		if rec.Binding != nil {
			if err := insertRoleBinding(ctx, tx, *rec.Binding); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("invite redemption rolled back",
			slog.String("user_id", rec.UserID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return invite, nil
}
