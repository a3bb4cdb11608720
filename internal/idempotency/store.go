package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/events"
)

// Store persists idempotency records. All statements run on the bare
// connection pool, never inside the operation's transaction: the in-flight
// marker must be visible to concurrent requests before the operation commits,
// and the completed marker must survive even if a later step fails.
type Store struct {
	db        *database.DB
	retention time.Duration
}

// NewStore creates a store with the given record retention window.
func NewStore(db *database.DB, retention time.Duration) *Store {
	return &Store{db: db, retention: retention}
}

// Begin claims the key for execution. The insert relies on the primary key
// constraint so two concurrent identical requests race on the database, not
// on a check-then-insert in application code.
func (s *Store) Begin(ctx context.Context, key, operation, fingerprint string) (BeginResult, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, operation, fingerprint, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (key) DO NOTHING
	`, key, operation, fingerprint, StatusInFlight)
	if err != nil {
		return BeginResult{}, fmt.Errorf("failed to insert idempotency record: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return BeginResult{}, err
	}
	if inserted == 1 {
		return BeginResult{Outcome: Proceed}, nil
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		return BeginResult{}, err
	}

	if rec.Fingerprint != fingerprint {
		return BeginResult{Outcome: Conflict, ConflictReason: ConflictFingerprintMismatch}, nil
	}

	switch rec.Status {
	case StatusCompleted:
		return BeginResult{Outcome: Replay, Result: rec.Result}, nil

	case StatusFailed:
		// A failed attempt may be retried. The status guard keeps two
		// concurrent retries from both proceeding.
		res, err := s.db.ExecContext(ctx, `
			UPDATE idempotency_records
			SET status = $2, fingerprint = $3, result = NULL, events = NULL,
			    published_at = NULL, expires_at = NULL, updated_at = now()
			WHERE key = $1 AND status = $4
		`, key, StatusInFlight, fingerprint, StatusFailed)
		if err != nil {
			return BeginResult{}, fmt.Errorf("failed to reclaim idempotency record: %w", err)
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return BeginResult{}, err
		}
		if claimed == 1 {
			return BeginResult{Outcome: Proceed}, nil
		}
		return BeginResult{Outcome: Conflict, ConflictReason: ConflictInFlight}, nil

	default:
		return BeginResult{Outcome: Conflict, ConflictReason: ConflictInFlight}, nil
	}
}

// Complete marks the record completed, storing the serialized result and the
// buffered events so a crash before publish can be recovered by the sweeper.
func (s *Store) Complete(ctx context.Context, key string, result json.RawMessage, evs []events.Event) error {
	eventsJSON, err := json.Marshal(evs)
	if err != nil {
		return fmt.Errorf("failed to marshal buffered events: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status = $2, result = $3, events = $4,
		    expires_at = now() + $5::interval, updated_at = now()
		WHERE key = $1 AND status = $6
	`, key, StatusCompleted, []byte(result), eventsJSON, s.retention.String(), StatusInFlight)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// The record was reclaimed or purged out from under us. Refusing
		// here keeps the runner from publishing events for a result the
		// record no longer owns.
		return fmt.Errorf("idempotency record %s is no longer in flight", key)
	}
	return nil
}

// Fail marks the record failed so a subsequent retry with the same key may
// re-attempt the operation.
func (s *Store) Fail(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status = $2, expires_at = now() + $3::interval, updated_at = now()
		WHERE key = $1 AND status = $4
	`, key, StatusFailed, s.retention.String(), StatusInFlight)
	if err != nil {
		return fmt.Errorf("failed to mark idempotency record failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("idempotency record %s is no longer in flight", key)
	}
	return nil
}

// MarkPublished records that the buffered events of a completed operation
// were handed to the event bus.
func (s *Store) MarkPublished(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET published_at = now(), updated_at = now()
		WHERE key = $1
	`, key)
	if err != nil {
		return fmt.Errorf("failed to mark idempotency record published: %w", err)
	}
	return nil
}

// Get loads a record by key.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, `
		SELECT key, operation, fingerprint, status, result, events,
		       published_at, created_at, updated_at, expires_at
		FROM idempotency_records
		WHERE key = $1
	`, key)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("idempotency record %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotency record: %w", err)
	}
	return &rec, nil
}

// Purge removes expired records. In-flight records are never removed no
// matter how old they are.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_records
		WHERE status <> $1 AND expires_at IS NOT NULL AND expires_at < now()
	`, StatusInFlight)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency records: %w", err)
	}
	return res.RowsAffected()
}

// Unpublished returns completed records whose events were never handed to the
// bus, older than the grace window. These are the crash-between-commit-and-
// publish cases the redelivery sweep covers.
func (s *Store) Unpublished(ctx context.Context, olderThan time.Duration) ([]*Record, error) {
	var recs []*Record
	err := s.db.SelectContext(ctx, &recs, `
		SELECT key, operation, fingerprint, status, result, events,
		       published_at, created_at, updated_at, expires_at
		FROM idempotency_records
		WHERE status = $1 AND published_at IS NULL AND updated_at < now() - $2::interval
		ORDER BY updated_at
	`, StatusCompleted, olderThan.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list unpublished idempotency records: %w", err)
	}
	return recs, nil
}
