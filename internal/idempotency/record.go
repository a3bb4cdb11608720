// Package idempotency implements the durable key to result cache that gives
// every mutating operation at-most-once execution semantics.
package idempotency

import (
	"encoding/json"
	"time"
)

// Status of an idempotency record
const (
	StatusInFlight  = "in_flight"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is one row of the idempotency table. At most one record exists per
// key, enforced by the primary key.
type Record struct {
	Key         string          `db:"key" json:"key"`
	Operation   string          `db:"operation" json:"operation"`
	Fingerprint string          `db:"fingerprint" json:"fingerprint"`
	Status      string          `db:"status" json:"status"`
	Result      json.RawMessage `db:"result" json:"result,omitempty"`
	Events      json.RawMessage `db:"events" json:"-"`
	PublishedAt *time.Time      `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	ExpiresAt   *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
}

// Outcome of Store.Begin
type Outcome int

const (
	// Proceed means no prior record existed; an in-flight record was
	// inserted and the caller must execute the operation.
	Proceed Outcome = iota
	// Replay means a completed record with a matching fingerprint exists;
	// the caller must return the stored result without re-running side
	// effects.
	Replay
	// Conflict means another request with the same key is still in flight,
	// or the key was reused with a different payload fingerprint.
	Conflict
)

// ConflictReason qualifies a Conflict outcome.
type ConflictReason string

const (
	ConflictInFlight            ConflictReason = "in_flight"
	ConflictFingerprintMismatch ConflictReason = "fingerprint_mismatch"
)

// BeginResult is the decision returned by Store.Begin.
type BeginResult struct {
	Outcome        Outcome
	Result         json.RawMessage
	ConflictReason ConflictReason
}
