package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/delivery"
)

// delivery_attempts is an append-only log without foreign keys. Recording an
// attempt must never fail because the referenced row was retired in between.

func (s *Store) RecordAttempt(ctx context.Context, a delivery.Attempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (id, event_id, subscription_id, channel_id, channel_kind, message_kind, outcome, tries, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.EventID, a.SubscriptionID, a.ChannelID, a.ChannelKind,
		a.MessageKind, a.Outcome, a.Tries, a.Error, a.Duration.Milliseconds(), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

func (s *Store) AttemptsForEvent(ctx context.Context, eventID uuid.UUID) ([]delivery.Attempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, subscription_id, channel_id, channel_kind, message_kind, outcome, tries, error, duration_ms, created_at
		FROM delivery_attempts
		WHERE event_id = $1
		ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("select delivery attempts: %w", err)
	}
	defer rows.Close()

	var out []delivery.Attempt
	for rows.Next() {
		var (
			a          delivery.Attempt
			durationMS int64
		)
		err := rows.Scan(
			&a.ID, &a.EventID, &a.SubscriptionID, &a.ChannelID, &a.ChannelKind,
			&a.MessageKind, &a.Outcome, &a.Tries, &a.Error, &durationMS, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}
