// Package reconcile runs the periodic sweeps over errored subscriptions:
// soft resets for endpoints worth another chance, permanent removal for
// endpoints dead past the retention window.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forumhq/webhooks/internal/registry"
)

// Sweeper owns the two reconciliation jobs. Both are idempotent and operate
// on disjoint sets (the failure-count threshold splits them), so they can
// run concurrently with each other and with live dispatching.
type Sweeper struct {
	registry        registry.Registry
	logger          *slog.Logger
	interval        time.Duration
	retryWindow     time.Duration
	retentionWindow time.Duration
}

func NewSweeper(reg registry.Registry, interval, retryWindow, retentionWindow time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		registry:        reg,
		logger:          logger,
		interval:        interval,
		retryWindow:     retryWindow,
		retentionWindow: retentionWindow,
	}
}

// Start runs the sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("reconciliation sweeper started",
		"interval", s.interval,
		"retry_window", s.retryWindow,
		"retention_window", s.retentionWindow,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation sweeper stopping")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// RunOnce executes the soft-reset sweep and the expiry sweep.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.softReset(ctx) })
	g.Go(func() error { return s.expire(ctx) })
	return g.Wait()
}

// softReset gives errored-but-not-yet-permanently-failed subscriptions
// another chance, once they have sat out the retry window.
func (s *Sweeper) softReset(ctx context.Context) error {
	stale, err := s.registry.FindStaleErrored(ctx, s.retryWindow)
	if err != nil {
		return fmt.Errorf("finding stale errored subscriptions: %w", err)
	}

	for _, sub := range stale {
		if err := s.registry.Reset(ctx, sub.ID); err != nil {
			s.logger.Error("failed to reset subscription", "error", err, "subscription_id", sub.ID)
			continue
		}
		s.logger.Info("subscription reset for retry",
			"subscription_id", sub.ID,
			"target_url", sub.TargetURL,
		)
	}

	if len(stale) > 0 {
		s.logger.Info("soft-reset sweep complete", "reset", len(stale))
	}
	return nil
}

// expire permanently deletes subscriptions errored at the threshold and
// untouched for the whole retention window.
func (s *Sweeper) expire(ctx context.Context) error {
	expired, err := s.registry.FindExpiredErrored(ctx, s.retentionWindow)
	if err != nil {
		return fmt.Errorf("finding expired errored subscriptions: %w", err)
	}

	for _, sub := range expired {
		if err := s.registry.Delete(ctx, sub.ID); err != nil {
			s.logger.Error("failed to delete expired subscription", "error", err, "subscription_id", sub.ID)
			continue
		}
		s.logger.Info("expired subscription deleted",
			"subscription_id", sub.ID,
			"target_url", sub.TargetURL,
			"failure_count", sub.FailureCount,
		)
	}

	if len(expired) > 0 {
		s.logger.Info("expiry sweep complete", "deleted", len(expired))
	}
	return nil
}
