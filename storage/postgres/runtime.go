package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pypeaday/soonish-sub002/runtime"
)

const (
	signalColumns = "id, instance_id, seq, name, payload, status, attempts, max_attempts, scheduled_at, locked_until, locked_by, processed_at, error, created_at"
	timerColumns  = "id, instance_id, handler, fire_at, payload, status, attempts, max_attempts, locked_until, locked_by, processed_at, error, created_at, updated_at"
)

// CreateInstance inserts the instance and its start signal in one
// transaction, so a claimed start signal always sees its instance. The
// signal_seq counter starts at 1, the seq consumed by the start signal.
func (s *Store) CreateInstance(ctx context.Context, inst runtime.Instance, start runtime.Signal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO runtime_instances (id, kind, state, input, ended_at, created_at, updated_at, signal_seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)`,
		inst.ID, inst.Kind, inst.State, inst.Input, inst.EndedAt, inst.CreatedAt, inst.UpdatedAt,
	)
	if pgErrCode(err) == pgUniqueViolation {
		return runtime.ErrInstanceExists
	}
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO runtime_signals (id, instance_id, seq, name, payload, status, attempts, max_attempts, scheduled_at, created_at)
		VALUES ($1, $2, 1, $3, $4, $5, $6, $7, $8, $9)`,
		start.ID, start.InstanceID, start.Name, start.Payload, start.Status,
		start.Attempts, start.MaxAttempts, start.ScheduledAt, start.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert start signal: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) Instance(ctx context.Context, id uuid.UUID) (*runtime.Instance, error) {
	var inst runtime.Instance
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, state, input, ended_at, created_at, updated_at
		FROM runtime_instances WHERE id = $1`, id).
		Scan(&inst.ID, &inst.Kind, &inst.State, &inst.Input, &inst.EndedAt, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, runtime.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select instance: %w", err)
	}
	return &inst, nil
}

func (s *Store) UpdateInstanceState(ctx context.Context, id uuid.UUID, state string, endedAt *time.Time) error {
	// COALESCE keeps the first end timestamp: once an instance ends, later
	// state updates must not move it.
	tag, err := s.pool.Exec(ctx, `
		UPDATE runtime_instances
		SET state = $2, ended_at = COALESCE(ended_at, $3), updated_at = now()
		WHERE id = $1`,
		id, state, endedAt,
	)
	if err != nil {
		return fmt.Errorf("update instance state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return runtime.ErrInstanceNotFound
	}
	return nil
}

// AppendSignal assigns the next seq by bumping the instance's counter inside
// the insert. The counter row lock serializes concurrent appends to the same
// instance, so seq values stay gapless and unique without a retry loop.
func (s *Store) AppendSignal(ctx context.Context, sig runtime.Signal) error {
	tag, err := s.pool.Exec(ctx, `
		WITH bumped AS (
			UPDATE runtime_instances
			SET signal_seq = signal_seq + 1
			WHERE id = $2
			RETURNING signal_seq
		)
		INSERT INTO runtime_signals (id, instance_id, seq, name, payload, status, attempts, max_attempts, scheduled_at, created_at)
		SELECT $1, $2, signal_seq, $3, $4, $5, $6, $7, $8, $9 FROM bumped`,
		sig.ID, sig.InstanceID, sig.Name, sig.Payload, sig.Status,
		sig.Attempts, sig.MaxAttempts, sig.ScheduledAt, sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return runtime.ErrInstanceNotFound
	}
	return nil
}

// ClaimSignal picks the oldest due head-of-queue signal across all instances.
// A signal is its instance's head when no lower-seq sibling is still live;
// a processing or backing-off head keeps the whole instance unclaimable.
// FOR UPDATE SKIP LOCKED lets concurrent workers claim different instances
// without lock waits.
func (s *Store) ClaimSignal(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*runtime.Signal, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE runtime_signals
		SET status = 'processing', locked_until = now() + make_interval(secs => $2), locked_by = $1
		WHERE id = (
			SELECT s.id
			FROM runtime_signals s
			WHERE s.status = 'pending'
			  AND s.scheduled_at <= now()
			  AND NOT EXISTS (
				SELECT 1 FROM runtime_signals older
				WHERE older.instance_id = s.instance_id
				  AND older.seq < s.seq
				  AND older.status NOT IN ('completed', 'parked')
			  )
			ORDER BY s.scheduled_at, s.created_at
			LIMIT 1
			FOR UPDATE OF s SKIP LOCKED
		)
		RETURNING `+signalColumns,
		workerID, lockDuration.Seconds(),
	)

	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, runtime.ErrNoSignalToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim signal: %w", err)
	}
	return &sig, nil
}

func (s *Store) CompleteSignal(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runtime_signals
		SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("complete signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.signalTransitionError(ctx, id)
	}
	return nil
}

func (s *Store) FailSignal(ctx context.Context, id uuid.UUID, errorMsg string) error {
	// attempts in the CASE arms is the pre-update value, so the new attempt
	// count is attempts + 1. Backoff grows linearly: 30s, 60s, 90s.
	tag, err := s.pool.Exec(ctx, `
		UPDATE runtime_signals
		SET attempts = attempts + 1,
		    error = $2,
		    locked_until = NULL,
		    locked_by = NULL,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'parked' ELSE 'pending' END,
		    scheduled_at = CASE WHEN attempts + 1 >= max_attempts THEN scheduled_at ELSE now() + (attempts + 1) * interval '30 seconds' END
		WHERE id = $1 AND status = 'processing'`, id, errorMsg)
	if err != nil {
		return fmt.Errorf("fail signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.signalTransitionError(ctx, id)
	}
	return nil
}

func (s *Store) ParkSignal(ctx context.Context, id uuid.UUID, errorMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runtime_signals
		SET status = 'parked', error = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, id, errorMsg)
	if err != nil {
		return fmt.Errorf("park signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.signalTransitionError(ctx, id)
	}
	return nil
}

func (s *Store) Signals(ctx context.Context, instanceID uuid.UUID) ([]runtime.Signal, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM runtime_instances WHERE id = $1)`, instanceID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check instance: %w", err)
	}
	if !exists {
		return nil, runtime.ErrInstanceNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+signalColumns+` FROM runtime_signals
		WHERE instance_id = $1
		ORDER BY seq`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("select signals: %w", err)
	}
	defer rows.Close()

	var out []runtime.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// UpsertTimer reschedules on conflict: an existing registration returns to
// pending with a fresh fire time, payload and attempt budget. A worker
// holding the old registration sees the status change on complete and backs
// off.
func (s *Store) UpsertTimer(ctx context.Context, t runtime.Timer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runtime_timers (id, instance_id, handler, fire_at, payload, status, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			handler = EXCLUDED.handler,
			fire_at = EXCLUDED.fire_at,
			payload = EXCLUDED.payload,
			status = 'pending',
			attempts = 0,
			error = NULL,
			locked_until = NULL,
			locked_by = NULL,
			processed_at = NULL,
			updated_at = now()`,
		t.ID, t.InstanceID, t.Handler, t.FireAt, t.Payload, t.Status,
		t.Attempts, t.MaxAttempts, t.CreatedAt, t.UpdatedAt,
	)
	if pgErrCode(err) == pgForeignKeyViolation {
		return runtime.ErrInstanceNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert timer: %w", err)
	}
	return nil
}

func (s *Store) CancelTimer(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM runtime_timers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("cancel timer: %w", err)
	}
	return nil
}

func (s *Store) Timers(ctx context.Context, instanceID uuid.UUID) ([]runtime.Timer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+timerColumns+` FROM runtime_timers
		WHERE instance_id = $1
		ORDER BY created_at, id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("select timers: %w", err)
	}
	defer rows.Close()

	var out []runtime.Timer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ClaimTimer(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*runtime.Timer, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE runtime_timers
		SET status = 'processing', locked_until = now() + make_interval(secs => $2), locked_by = $1
		WHERE id = (
			SELECT id FROM runtime_timers
			WHERE status = 'pending' AND fire_at <= now()
			ORDER BY fire_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+timerColumns,
		workerID, lockDuration.Seconds(),
	)

	t, err := scanTimer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, runtime.ErrNoTimerToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim timer: %w", err)
	}
	return &t, nil
}

func (s *Store) CompleteTimer(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runtime_timers
		SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("complete timer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.timerTransitionError(ctx, id)
	}
	return nil
}

func (s *Store) FailTimer(ctx context.Context, id uuid.UUID, errorMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runtime_timers
		SET attempts = attempts + 1,
		    error = $2,
		    locked_until = NULL,
		    locked_by = NULL,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'parked' ELSE 'pending' END,
		    fire_at = CASE WHEN attempts + 1 >= max_attempts THEN fire_at ELSE now() + (attempts + 1) * interval '30 seconds' END,
		    updated_at = now()
		WHERE id = $1 AND status = 'processing'`, id, errorMsg)
	if err != nil {
		return fmt.Errorf("fail timer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.timerTransitionError(ctx, id)
	}
	return nil
}

func (s *Store) ParkTimer(ctx context.Context, id uuid.UUID, errorMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runtime_timers
		SET status = 'parked', error = $2, locked_until = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing'`, id, errorMsg)
	if err != nil {
		return fmt.Errorf("park timer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.timerTransitionError(ctx, id)
	}
	return nil
}

func (s *Store) ExpireLocks(ctx context.Context) (int, error) {
	signals, err := s.pool.Exec(ctx, `
		UPDATE runtime_signals
		SET status = 'pending', locked_until = NULL, locked_by = NULL
		WHERE status = 'processing' AND locked_until < now()`)
	if err != nil {
		return 0, fmt.Errorf("expire signal locks: %w", err)
	}

	timers, err := s.pool.Exec(ctx, `
		UPDATE runtime_timers
		SET status = 'pending', locked_until = NULL, locked_by = NULL, updated_at = now()
		WHERE status = 'processing' AND locked_until < now()`)
	if err != nil {
		return int(signals.RowsAffected()), fmt.Errorf("expire timer locks: %w", err)
	}

	return int(signals.RowsAffected() + timers.RowsAffected()), nil
}

func (s *Store) RetireInstances(ctx context.Context, endedBefore time.Time) (int, error) {
	// Signals and timers cascade with their instance.
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM runtime_instances
		WHERE ended_at IS NOT NULL AND ended_at < $1`, endedBefore)
	if err != nil {
		return 0, fmt.Errorf("retire instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// signalTransitionError resolves a zero-row transition update: the signal is
// either gone or no longer processing.
func (s *Store) signalTransitionError(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM runtime_signals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check signal: %w", err)
	}
	if !exists {
		return runtime.ErrSignalNotFound
	}
	return runtime.ErrNotProcessing
}

func (s *Store) timerTransitionError(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM runtime_timers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check timer: %w", err)
	}
	if !exists {
		return runtime.ErrTimerNotFound
	}
	return runtime.ErrNotProcessing
}

func scanSignal(row pgx.Row) (runtime.Signal, error) {
	var sig runtime.Signal
	err := row.Scan(
		&sig.ID, &sig.InstanceID, &sig.Seq, &sig.Name, &sig.Payload, &sig.Status,
		&sig.Attempts, &sig.MaxAttempts, &sig.ScheduledAt, &sig.LockedUntil,
		&sig.LockedBy, &sig.ProcessedAt, &sig.Error, &sig.CreatedAt,
	)
	return sig, err
}

func scanTimer(row pgx.Row) (runtime.Timer, error) {
	var t runtime.Timer
	err := row.Scan(
		&t.ID, &t.InstanceID, &t.Handler, &t.FireAt, &t.Payload, &t.Status,
		&t.Attempts, &t.MaxAttempts, &t.LockedUntil, &t.LockedBy,
		&t.ProcessedAt, &t.Error, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
