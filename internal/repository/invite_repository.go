package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

const inviteColumns = `code, invited_email, account_type, created_by, hub_id, creator_hub_id, used_at, used_by, expires_at, created_at`

// PostgresInviteRepository implements domain.InviteRepository using PostgreSQL
type PostgresInviteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresInviteRepository creates a new invite repository
func NewPostgresInviteRepository(db *sql.DB, logger *slog.Logger) *PostgresInviteRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInviteRepository{db: db, logger: logger}
}

// Create inserts an invite. A duplicate code returns domain.ErrConflict.
func (r *PostgresInviteRepository) Create(ctx context.Context, invite *domain.Invite) error {
	query := `
		INSERT INTO invite_codes (code, invited_email, account_type, created_by, hub_id, creator_hub_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		invite.Code,
		invite.InvitedEmail,
		string(invite.AccountType),
		invite.CreatedBy,
		nullString(invite.HubID),
		nullString(invite.CreatorHubID),
		invite.ExpiresAt,
		invite.CreatedAt,
	)
	if err != nil {
		mapped := mapPgError(err)
		if errors.Is(mapped, domain.ErrConflict) {
			return mapped
		}
		r.logger.Error("failed to create invite",
			slog.String("created_by", invite.CreatedBy),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create invite: %w", mapped)
	}
	return nil
}

// GetByCode retrieves an invite regardless of status
func (r *PostgresInviteRepository) GetByCode(ctx context.Context, code string) (*domain.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invite_codes WHERE code = $1`

	invite, err := scanInvite(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return invite, nil
}

// markInviteUsed is the single-winner transition from active to used. The
// WHERE clause provides mutual exclusion: of two concurrent callers only one
// sees a row come back.
func markInviteUsed(ctx context.Context, q querier, code, userID string, now time.Time) (*domain.Invite, error) {
	query := `
		UPDATE invite_codes
		SET used_at = $3, used_by = $2
		WHERE code = $1 AND used_at IS NULL AND expires_at > $3
		RETURNING ` + inviteColumns

	invite, err := scanInvite(q.QueryRowContext(ctx, query, code, userID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInviteInvalid
		}
		return nil, fmt.Errorf("failed to mark invite used: %w", err)
	}
	return invite, nil
}

// List returns invites newest first. Status is evaluated against now.
func (r *PostgresInviteRepository) List(ctx context.Context, filter domain.InviteFilter, now time.Time) ([]*domain.Invite, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.HubID != nil {
		conds = append(conds, "hub_id = "+arg(*filter.HubID))
	}
	switch filter.Status {
	case domain.InviteStatusActive:
		conds = append(conds, "used_at IS NULL AND expires_at > "+arg(now))
	case domain.InviteStatusUsed:
		conds = append(conds, "used_at IS NOT NULL")
	case domain.InviteStatusExpired:
		conds = append(conds, "used_at IS NULL AND expires_at <= "+arg(now))
	}

	query := `SELECT ` + inviteColumns + ` FROM invite_codes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []*domain.Invite
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, invite)
	}
	return invites, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvite(row rowScanner) (*domain.Invite, error) {
	var (
		invite      domain.Invite
		accountType string
		hubID       sql.NullString
		creatorHub  sql.NullString
		usedAt      sql.NullTime
		usedBy      sql.NullString
	)
	if err := row.Scan(
		&invite.Code,
		&invite.InvitedEmail,
		&accountType,
		&invite.CreatedBy,
		&hubID,
		&creatorHub,
		&usedAt,
		&usedBy,
		&invite.ExpiresAt,
		&invite.CreatedAt,
	); err != nil {
		return nil, err
	}
	invite.AccountType = domain.AccountType(accountType)
	invite.HubID = stringPtr(hubID)
	invite.CreatorHubID = stringPtr(creatorHub)
	invite.UsedAt = timePtr(usedAt)
	invite.UsedBy = stringPtr(usedBy)
	return &invite, nil
}
