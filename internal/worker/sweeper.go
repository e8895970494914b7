package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/observability/metrics"
)

// Purger drops expired entries from an in-process cache.
type Purger interface {
	Purge() int
}

// Sweeper periodically retires state whose expiry is only evaluated at read
// time, and retries deletion of identities orphaned by failed signups.
type Sweeper struct {
	sessions      domain.ImpersonationRepository
	subscriptions domain.SubscriptionRepository
	orphans       domain.OrphanQueue
	provider      domain.IdentityProvider
	cache         Purger
	interval      time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// NewSweeper creates a new sweeper. cache may be nil.
func NewSweeper(
	sessions domain.ImpersonationRepository,
	subscriptions domain.SubscriptionRepository,
	orphans domain.OrphanQueue,
	provider domain.IdentityProvider,
	cache Purger,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		sessions:      sessions,
		subscriptions: subscriptions,
		orphans:       orphans,
		provider:      provider,
		cache:         cache,
		interval:      interval,
		now:           time.Now,
		logger:        logger,
	}
}

// Start runs the sweep loop until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs every sweep task. A failing task does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.now()

	n, err := s.sessions.DeactivateExpired(ctx, now)
	s.record("impersonation_sessions", n, err)

	n, err = s.subscriptions.ExpireLapsed(ctx, now)
	s.record("subscriptions", n, err)

	n, err = s.reconcileOrphans(ctx)
	s.record("orphaned_identities", n, err)

	if s.cache != nil {
		if purged := s.cache.Purge(); purged > 0 {
			s.logger.Debug("hub cache purged", slog.Int("entries", purged))
		}
	}
}

// reconcileOrphans retries provider deletion for every queued identity. An
// identity the provider no longer knows counts as deleted.
func (s *Sweeper) reconcileOrphans(ctx context.Context) (int64, error) {
	if s.orphans == nil {
		return 0, nil
	}
	ids, err := s.orphans.List(ctx)
	if err != nil {
		return 0, err
	}

	var reconciled int64
	remaining := len(ids)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		err := s.provider.DeleteUser(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("orphaned identity still not deleted",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.orphans.Remove(ctx, id); err != nil {
			s.logger.Error("failed to dequeue orphaned identity",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		reconciled++
		remaining--
		s.logger.Info("orphaned identity deleted", slog.String("user_id", id))
	}
	metrics.SetOrphanedIdentities(remaining)
	return reconciled, nil
}

func (s *Sweeper) record(task string, n int64, err error) {
	if err != nil {
		metrics.ObserveSweep(task, "error", 1)
		s.logger.Error("sweep task failed",
			slog.String("task", task),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.ObserveSweep(task, "success", n)
	if n > 0 {
		s.logger.Info("sweep task completed", slog.String("task", task), slog.Int64("count", n))
	}
}
