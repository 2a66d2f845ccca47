package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/pkg/secrets"
	"github.com/pypeaday/soonish-sub002/storage"
)

// targetDigest fingerprints a target for the active-channel uniqueness index.
// GCM ciphertexts differ on every encryption, so uniqueness cannot be checked
// on target_encrypted. Salting with the owner id keeps digests incomparable
// across users.
func targetDigest(userID uuid.UUID, target event.Target) string {
	sum := sha256.Sum256(append(userID[:], target.Reveal()...))
	return hex.EncodeToString(sum[:])
}

func (s *Store) CreateChannel(ctx context.Context, ch event.Channel) error {
	encrypted, err := secrets.EncryptString(s.appKey, secrets.ScopeKey(ch.UserID[:]), ch.Target.Reveal())
	if err != nil {
		return fmt.Errorf("encrypt channel target: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO channels (id, user_id, kind, target_encrypted, target_digest, label, tag, active, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ch.ID, ch.UserID, ch.Kind, encrypted, targetDigest(ch.UserID, ch.Target),
		ch.Label, ch.Tag, ch.Active, ch.CreatedAt, ch.UpdatedAt, ch.DeactivatedAt,
	)
	if pgErrCode(err) == pgUniqueViolation {
		return storage.ErrDuplicateChannel
	}
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *Store) Channel(ctx context.Context, id uuid.UUID) (event.Channel, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, target_encrypted, label, tag, active, created_at, updated_at, deactivated_at
		FROM channels WHERE id = $1`, id)

	ch, err := s.scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Channel{}, storage.ErrChannelNotFound
	}
	if err != nil {
		return event.Channel{}, fmt.Errorf("select channel: %w", err)
	}
	return ch, nil
}

func (s *Store) ChannelsForUser(ctx context.Context, userID uuid.UUID) ([]event.Channel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kind, target_encrypted, label, tag, active, created_at, updated_at, deactivated_at
		FROM channels
		WHERE user_id = $1
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select channels for user: %w", err)
	}
	defer rows.Close()

	var out []event.Channel
	for rows.Next() {
		ch, err := s.scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateChannel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE channels
		SET active = FALSE, deactivated_at = now(), updated_at = now()
		WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("deactivate channel: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows means missing or already inactive; only the former is an error.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check channel: %w", err)
	}
	if !exists {
		return storage.ErrChannelNotFound
	}
	return nil
}

func (s *Store) scanChannel(row pgx.Row) (event.Channel, error) {
	var (
		ch        event.Channel
		encrypted string
	)
	err := row.Scan(
		&ch.ID, &ch.UserID, &ch.Kind, &encrypted, &ch.Label, &ch.Tag,
		&ch.Active, &ch.CreatedAt, &ch.UpdatedAt, &ch.DeactivatedAt,
	)
	if err != nil {
		return event.Channel{}, err
	}

	target, err := secrets.DecryptString(s.appKey, secrets.ScopeKey(ch.UserID[:]), encrypted)
	if err != nil {
		return event.Channel{}, fmt.Errorf("decrypt channel target: %w", err)
	}
	ch.Target = event.Target(target)
	return ch, nil
}
