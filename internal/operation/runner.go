// Package operation implements the transactional operation runner: the single
// entry point every mutating use case goes through. It composes the
// idempotency store, the database unit of work and the event bus so that side
// effects execute at most once and events are only observed for transactions
// that durably committed.
package operation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/stockflow/stockflow-backend/internal/idempotency"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Result is the outcome of an executed or replayed operation.
type Result struct {
	Value        json.RawMessage
	WasDuplicate bool
}

// Fn is the body of a use case. It runs inside a single database transaction;
// events raised through the context recorder are buffered until commit.
type Fn func(ctx context.Context) (any, error)

// Runner executes mutating operations with idempotency, a transaction
// boundary and post-commit event publishing.
type Runner struct {
	store  *idempotency.Store
	db     *database.DB
	bus    *events.Bus
	logger *logger.Logger
}

// NewRunner creates a runner.
func NewRunner(store *idempotency.Store, db *database.DB, bus *events.Bus, log *logger.Logger) *Runner {
	return &Runner{
		store:  store,
		db:     db,
		bus:    bus,
		logger: log.WithComponent("operation-runner"),
	}
}

// DeriveKey builds an idempotency key from the operation name and payload
// when the caller did not supply one.
func DeriveKey(operation string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return operation + ":" + hex.EncodeToString(sum[:16])
}

// Fingerprint hashes the payload so a reused key submitted with different
// content is detectable.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Execute runs fn under the operation contract:
//
//  1. Claim the idempotency key. A replay returns the stored result without
//     invoking fn; a concurrent in-flight duplicate fails fast.
//  2. Open one transaction, invoke fn inside it, buffering raised events.
//  3. On success commit, mark the record completed (result + events), then
//     publish the buffered events. Events are never observed for a
//     transaction that did not commit; a crash between commit and publish is
//     covered by the sweeper's redelivery of completed-but-unpublished
//     records.
//  4. On failure roll back, mark the record failed and propagate the error.
func (r *Runner) Execute(ctx context.Context, key, operation string, payload any, fn Fn) (Result, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Result{}, errors.Wrap(err, "INTERNAL_ERROR", "failed to serialize operation payload", 500)
	}

	if key == "" {
		key = DeriveKey(operation, payloadJSON)
	}
	fingerprint := Fingerprint(payloadJSON)

	begin, err := r.store.Begin(ctx, key, operation, fingerprint)
	if err != nil {
		return Result{}, errors.Wrap(err, "INTERNAL_ERROR", "failed to claim idempotency key", 500)
	}

	switch begin.Outcome {
	case idempotency.Replay:
		r.logger.Debug().Str("key", key).Str("operation", operation).Msg("replaying stored result")
		return Result{Value: begin.Result, WasDuplicate: true}, nil

	case idempotency.Conflict:
		if begin.ConflictReason == idempotency.ConflictFingerprintMismatch {
			return Result{}, errors.Conflict(
				fmt.Sprintf("idempotency key %s was already used with a different payload", key))
		}
		return Result{}, errors.DuplicateInFlight(key, operation)
	}

	recorder := events.NewRecorder()
	opCtx := events.WithRecorder(ctx, recorder)

	var value any
	txErr := r.db.RunInTx(opCtx, func(txCtx context.Context) error {
		v, err := fn(txCtx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})

	if txErr != nil {
		if failErr := r.store.Fail(ctx, key); failErr != nil {
			r.logger.Error().Err(failErr).Str("key", key).Msg("failed to mark idempotency record failed")
		}
		return Result{}, txErr
	}

	resultJSON, err := json.Marshal(value)
	if err != nil {
		// The transaction committed; the record stays in flight and the
		// failure is surfaced. This should never happen for well-formed
		// result types.
		r.logger.Error().Err(err).Str("key", key).Msg("failed to serialize operation result")
		return Result{}, errors.Internal("failed to serialize operation result")
	}

	buffered := recorder.Drain()
	if err := r.store.Complete(ctx, key, resultJSON, buffered); err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("failed to mark idempotency record completed")
		return Result{}, errors.Internal("operation committed but completion could not be recorded")
	}

	r.bus.PublishAll(ctx, buffered)

	if err := r.store.MarkPublished(ctx, key); err != nil {
		// Redelivery sweep will republish; subscribers dedup by event id.
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to mark events published")
	}

	return Result{Value: resultJSON, WasDuplicate: false}, nil
}
