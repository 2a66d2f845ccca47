package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/storage"
)

func (s *Store) AddSelector(ctx context.Context, sel event.Selector) error {
	if err := sel.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO selectors (id, subscription_id, channel_id, tag, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sel.ID, sel.SubscriptionID, sel.ChannelID, sel.Tag, sel.CreatedAt,
	)
	switch pgErrCode(err) {
	case pgUniqueViolation:
		return storage.ErrDuplicateSelector
	case pgForeignKeyViolation:
		return storage.ErrSubscriptionNotFound
	}
	if err != nil {
		return fmt.Errorf("insert selector: %w", err)
	}
	return nil
}

func (s *Store) RemoveSelector(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM selectors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete selector: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrSelectorNotFound
	}
	return nil
}

func (s *Store) SelectorsForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]event.Selector, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subscription_id, channel_id, tag, created_at
		FROM selectors
		WHERE subscription_id = $1
		ORDER BY created_at, id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("select selectors: %w", err)
	}
	defer rows.Close()

	var out []event.Selector
	for rows.Next() {
		var sel event.Selector
		if err := rows.Scan(&sel.ID, &sel.SubscriptionID, &sel.ChannelID, &sel.Tag, &sel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan selector: %w", err)
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}
