package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/pkg/cache"
)

// PostgresHubRepository implements domain.HubRepository using PostgreSQL
type PostgresHubRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresHubRepository creates a new hub repository
func NewPostgresHubRepository(db *sql.DB, logger *slog.Logger) *PostgresHubRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresHubRepository{db: db, logger: logger}
}

func (r *PostgresHubRepository) GetByID(ctx context.Context, id string) (*domain.Hub, error) {
	var (
		hub     domain.Hub
		adminID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, slug, admin_user_id
		FROM hubs
		WHERE id = $1
	`, id).Scan(&hub.ID, &hub.Name, &hub.Slug, &adminID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get hub: %w", err)
	}
	hub.AdminUserID = stringPtr(adminID)
	return &hub, nil
}

// CachedHubRepository keeps hubs in memory for a short TTL. Hubs are
// read-only here, so staleness is bounded by the TTL alone.
type CachedHubRepository struct {
	next  domain.HubRepository
	cache *cache.Cache[*domain.Hub]
	ttl   time.Duration
}

func NewCachedHubRepository(next domain.HubRepository, ttl time.Duration) *CachedHubRepository {
	return &CachedHubRepository{next: next, cache: cache.New[*domain.Hub](), ttl: ttl}
}

func (r *CachedHubRepository) GetByID(ctx context.Context, id string) (*domain.Hub, error) {
	key := "hub:" + id
	if hub, ok := r.cache.Get(key); ok {
		return hub, nil
	}
	hub, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ttl > 0 {
		r.cache.Set(key, hub, r.ttl)
	}
	return hub, nil
}

// Purge drops expired entries; called by the sweeper.
func (r *CachedHubRepository) Purge() int {
	return r.cache.Purge()
}
