package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/storage"
)

const eventColumns = "id, organizer_id, title, description, start_at, end_at, public, created_at, updated_at"

func (s *Store) CreateEvent(ctx context.Context, evt event.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		evt.ID, evt.OrganizerID, evt.Title, evt.Description,
		evt.StartAt, evt.EndAt, evt.Public, evt.CreatedAt, evt.UpdatedAt,
	)
	if pgErrCode(err) == pgUniqueViolation {
		return storage.ErrEventExists
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, evt event.Event) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events
		SET title = $2, description = $3, start_at = $4, end_at = $5, public = $6, updated_at = $7
		WHERE id = $1`,
		evt.ID, evt.Title, evt.Description, evt.StartAt, evt.EndAt, evt.Public, evt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrEventNotFound
	}
	return nil
}

func (s *Store) Event(ctx context.Context, id uuid.UUID) (event.Event, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	evt, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Event{}, storage.ErrEventNotFound
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("select event: %w", err)
	}
	return evt, nil
}

func (s *Store) EventsByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE organizer_id = $1
		ORDER BY created_at DESC, id`, organizerID)
	if err != nil {
		return nil, fmt.Errorf("select events by organizer: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (event.Event, error) {
	var evt event.Event
	err := row.Scan(
		&evt.ID, &evt.OrganizerID, &evt.Title, &evt.Description,
		&evt.StartAt, &evt.EndAt, &evt.Public, &evt.CreatedAt, &evt.UpdatedAt,
	)
	return evt, err
}
