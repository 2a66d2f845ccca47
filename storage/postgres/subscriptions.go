package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/storage"
)

// Reminder offsets persist as whole seconds in a BIGINT[]; pgx maps []int64
// natively where []time.Duration would need a custom codec.

func offsetsToSeconds(offsets []time.Duration) []int64 {
	if offsets == nil {
		return nil
	}
	out := make([]int64, len(offsets))
	for i, d := range offsets {
		out[i] = int64(d / time.Second)
	}
	return out
}

func secondsToOffsets(seconds []int64) []time.Duration {
	if seconds == nil {
		return nil
	}
	out := make([]time.Duration, len(seconds))
	for i, s := range seconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

func (s *Store) CreateSubscription(ctx context.Context, sub event.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, event_id, user_id, active, offsets_seconds, created_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.EventID, sub.UserID, sub.Active,
		offsetsToSeconds(sub.Offsets), sub.CreatedAt, sub.DeactivatedAt,
	)
	switch pgErrCode(err) {
	case pgUniqueViolation:
		return storage.ErrDuplicateSubscription
	case pgForeignKeyViolation:
		return storage.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *Store) Subscription(ctx context.Context, id uuid.UUID) (event.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, event_id, user_id, active, offsets_seconds, created_at, deactivated_at
		FROM subscriptions WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Subscription{}, storage.ErrSubscriptionNotFound
	}
	if err != nil {
		return event.Subscription{}, fmt.Errorf("select subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) ActiveSubscriptions(ctx context.Context, eventID uuid.UUID) ([]event.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, user_id, active, offsets_seconds, created_at, deactivated_at
		FROM subscriptions
		WHERE event_id = $1 AND active
		ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("select active subscriptions: %w", err)
	}
	defer rows.Close()

	var out []event.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateSubscription(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET active = FALSE, deactivated_at = now()
		WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}
	if !exists {
		return storage.ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (event.Subscription, error) {
	var (
		sub     event.Subscription
		seconds []int64
	)
	err := row.Scan(
		&sub.ID, &sub.EventID, &sub.UserID, &sub.Active,
		&seconds, &sub.CreatedAt, &sub.DeactivatedAt,
	)
	if err != nil {
		return event.Subscription{}, err
	}
	sub.Offsets = secondsToOffsets(seconds)
	return sub, nil
}
