package repository

import (
	"context"
	"fmt"
	"log/slog"
)

const orphanSetKey = "jengabiz:orphaned_identities"

// SetStore is the subset of the Redis client used for the orphan queue
type SetStore interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// OrphanRepository implements domain.OrphanQueue using a Redis set, so the
// queue survives restarts and is shared across replicas.
type OrphanRepository struct {
	store  SetStore
	logger *slog.Logger
}

// NewOrphanRepository creates a new orphaned identity queue
func NewOrphanRepository(store SetStore, logger *slog.Logger) *OrphanRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrphanRepository{store: store, logger: logger}
}

func (r *OrphanRepository) Push(ctx context.Context, userID string) error {
	if err := r.store.SAdd(ctx, orphanSetKey, userID); err != nil {
		return fmt.Errorf("failed to queue orphaned identity: %w", err)
	}
	r.logger.Debug("orphaned identity queued", slog.String("user_id", userID))
	return nil
}

func (r *OrphanRepository) List(ctx context.Context) ([]string, error) {
	ids, err := r.store.SMembers(ctx, orphanSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned identities: %w", err)
	}
	return ids, nil
}

func (r *OrphanRepository) Remove(ctx context.Context, userID string) error {
	if err := r.store.SRem(ctx, orphanSetKey, userID); err != nil {
		return fmt.Errorf("failed to dequeue orphaned identity: %w", err)
	}
	return nil
}
