package store

import (
	"context"
	"fmt"
	"time"

	"github.com/forumhq/webhooks/internal/domain"
	"github.com/forumhq/webhooks/internal/health"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `id, owner_id, target_url, event_types, secret, status, failure_count, last_triggered_at, last_success_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.OwnerID, &sub.TargetURL, &sub.EventTypes, &sub.Secret,
		&sub.Status, &sub.FailureCount, &sub.LastTriggeredAt, &sub.LastSuccessAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, owner_id, target_url, event_types, secret, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sub.ID, sub.OwnerID, sub.TargetURL, sub.EventTypes, sub.Secret, sub.Status, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	args := []interface{}{}

	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}

	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *PostgresStore) Update(ctx context.Context, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	// Build dynamic update query
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.TargetURL != nil {
		setClauses = append(setClauses, fmt.Sprintf("target_url = $%d", argIdx))
		args = append(args, *req.TargetURL)
		argIdx++
	}
	if req.EventTypes != nil {
		setClauses = append(setClauses, fmt.Sprintf("event_types = $%d", argIdx))
		args = append(args, req.EventTypes)
		argIdx++
	}
	if req.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argIdx))
		// status on the right-hand side reads the pre-update row, so this
		// clears the counter only on a transition back to active.
		setClauses = append(setClauses, fmt.Sprintf(
			"failure_count = CASE WHEN $%d = '%s' AND status <> '%s' THEN 0 ELSE failure_count END",
			argIdx, domain.StatusActive, domain.StatusActive))
		args = append(args, *req.Status)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.Get(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE subscriptions SET %s
		WHERE id = $%d
		RETURNING %s
	`, joinStrings(setClauses, ", "), argIdx, subscriptionColumns)
	args = append(args, id)

	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("updating subscription: %w", err)
	}

	return sub, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// FindMatching returns active subscriptions subscribed to the event type.
func (s *PostgresStore) FindMatching(ctx context.Context, eventType string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = $1 AND $2 = ANY(event_types)
	`, domain.StatusActive, eventType)
	if err != nil {
		return nil, fmt.Errorf("finding matching subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *PostgresStore) FindStaleErrored(ctx context.Context, retryWindow time.Duration) ([]domain.Subscription, error) {
	cutoff := time.Now().Add(-retryWindow)

	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = $1 AND failure_count < $2 AND updated_at <= $3
	`, domain.StatusError, health.ErrorThreshold, cutoff)
	if err != nil {
		return nil, fmt.Errorf("finding stale errored subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *PostgresStore) FindExpiredErrored(ctx context.Context, retentionWindow time.Duration) ([]domain.Subscription, error) {
	cutoff := time.Now().Add(-retentionWindow)

	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = $1 AND failure_count >= $2 AND updated_at <= $3
	`, domain.StatusError, health.ErrorThreshold, cutoff)
	if err != nil {
		return nil, fmt.Errorf("finding expired errored subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

// RecordSuccess resets the failure state in a single statement, so racing
// deliveries to the same subscription cannot interleave a stale write.
func (s *PostgresStore) RecordSuccess(ctx context.Context, id string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET failure_count = 0,
		    status = $2,
		    last_triggered_at = $3,
		    last_success_at = $3,
		    updated_at = $3
		WHERE id = $1
	`, id, domain.StatusActive, now)
	if err != nil {
		return fmt.Errorf("recording delivery success: %w", err)
	}
	return nil
}

// RecordFailure increments the failure counter atomically and flips the
// status to error at the threshold, all inside one UPDATE.
func (s *PostgresStore) RecordFailure(ctx context.Context, id string, now time.Time) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET failure_count = failure_count + 1,
		    status = CASE WHEN failure_count + 1 >= $2 THEN $3 ELSE status END,
		    last_triggered_at = $4,
		    updated_at = $4
		WHERE id = $1
		RETURNING `+subscriptionColumns+`
	`, id, health.ErrorThreshold, domain.StatusError, now))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("subscription %s not found", id)
		}
		return nil, fmt.Errorf("recording delivery failure: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) Reset(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET failure_count = 0, status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, domain.StatusActive, domain.StatusError)
	if err != nil {
		return fmt.Errorf("resetting subscription: %w", err)
	}
	return nil
}

func joinStrings(strs []string, sep string) string {
	result := ""
	for i, s := range strs {
		if i > 0 {
			result += sep
		}
		result += s
	}
	return result
}
