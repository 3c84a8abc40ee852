package store

import (
	"context"
	"fmt"

	"github.com/forumhq/webhooks/internal/domain"
)

// RecordAttempt inserts a delivery attempt into the database.
func (s *PostgresStore) RecordAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (event_id, subscription_id, event_type, status, http_status_code, response_time_ms, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, attempt.EventID, attempt.SubscriptionID, attempt.EventType, attempt.Status,
		attempt.HTTPStatusCode, attempt.ResponseTimeMs, attempt.ErrorMessage, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery attempt: %w", err)
	}
	return nil
}

// ListAttempts returns delivery attempts with optional filtering.
func (s *PostgresStore) ListAttempts(ctx context.Context, eventID, subscriptionID, status string, limit int) ([]domain.DeliveryAttempt, error) {
	query := `SELECT id, event_id, subscription_id, event_type, status, http_status_code, response_time_ms, error_message, created_at FROM delivery_attempts`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if eventID != "" {
		conditions = append(conditions, fmt.Sprintf("event_id = $%d", argIdx))
		args = append(args, eventID)
		argIdx++
	}
	if subscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", argIdx))
		args = append(args, subscriptionID)
		argIdx++
	}
	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, status)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE " + joinStrings(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.DeliveryAttempt
	for rows.Next() {
		var a domain.DeliveryAttempt
		err := rows.Scan(
			&a.ID, &a.EventID, &a.SubscriptionID, &a.EventType, &a.Status,
			&a.HTTPStatusCode, &a.ResponseTimeMs, &a.ErrorMessage, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	if attempts == nil {
		attempts = []domain.DeliveryAttempt{}
	}

	return attempts, rows.Err()
}

// DeliveryStats returns aggregated delivery statistics from the database.
func (s *PostgresStore) DeliveryStats(ctx context.Context) (*domain.DeliveryStats, error) {
	var stats domain.DeliveryStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'success') AS success,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM delivery_attempts
	`).Scan(&stats.TotalDeliveries, &stats.SuccessCount, &stats.FailedCount, &stats.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("querying delivery stats: %w", err)
	}

	if stats.TotalDeliveries > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalDeliveries) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active') AS active,
			COUNT(*) FILTER (WHERE status = 'error') AS errored
		FROM subscriptions
	`).Scan(&stats.ActiveSubscriptions, &stats.ErroredSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying subscription counts: %w", err)
	}

	return &stats, nil
}
