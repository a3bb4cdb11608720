package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/pkg/database"
)

// InventoryRecord is the authoritative quantity state for one (product,
// location) pair. Invariants enforced by the ledger service and backed by
// CHECK constraints: OnHand >= 0 and Reserved + Allocated <= OnHand.
type InventoryRecord struct {
	ProductID    string    `db:"product_id" json:"product_id"`
	LocationID   string    `db:"location_id" json:"location_id"`
	OnHand       int       `db:"on_hand" json:"quantity_on_hand"`
	Reserved     int       `db:"reserved" json:"quantity_reserved"`
	Allocated    int       `db:"allocated" json:"quantity_allocated"`
	PickSequence int       `db:"pick_sequence" json:"pick_sequence"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Available returns the quantity not yet committed to picks or allocations.
func (r *InventoryRecord) Available() int {
	return r.OnHand - r.Reserved - r.Allocated
}

// RecordRepository handles inventory record persistence. All queries run
// through db.Ext(ctx) so they join the caller's transaction.
type RecordRepository struct {
	db *database.DB
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *database.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// GetForUpdate loads a record and takes a row lock so concurrent mutations of
// the same (product, location) pair serialize on the database. Returns
// (nil, nil) when no record exists yet.
func (r *RecordRepository) GetForUpdate(ctx context.Context, productID, locationID string) (*InventoryRecord, error) {
	var rec InventoryRecord
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &rec, `
		SELECT product_id, location_id, on_hand, reserved, allocated, pick_sequence, updated_at
		FROM inventory_records
		WHERE product_id = $1 AND location_id = $2
		FOR UPDATE
	`, productID, locationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get loads a record without locking.
func (r *RecordRepository) Get(ctx context.Context, productID, locationID string) (*InventoryRecord, error) {
	var rec InventoryRecord
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &rec, `
		SELECT product_id, location_id, on_hand, reserved, allocated, pick_sequence, updated_at
		FROM inventory_records
		WHERE product_id = $1 AND location_id = $2
	`, productID, locationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert creates a record.
func (r *RecordRepository) Insert(ctx context.Context, rec *InventoryRecord) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO inventory_records (product_id, location_id, on_hand, reserved, allocated, pick_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, rec.ProductID, rec.LocationID, rec.OnHand, rec.Reserved, rec.Allocated, rec.PickSequence)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// UpdateQuantities persists the quantity columns of a previously locked row.
func (r *RecordRepository) UpdateQuantities(ctx context.Context, rec *InventoryRecord) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE inventory_records
		SET on_hand = $3, reserved = $4, allocated = $5, updated_at = now()
		WHERE product_id = $1 AND location_id = $2
	`, rec.ProductID, rec.LocationID, rec.OnHand, rec.Reserved, rec.Allocated)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ListByProduct returns all records for a product ordered by pick sequence,
// lowest first. Used for availability aggregation and pick location
// assignment.
func (r *RecordRepository) ListByProduct(ctx context.Context, productID string) ([]*InventoryRecord, error) {
	var recs []*InventoryRecord
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &recs, `
		SELECT product_id, location_id, on_hand, reserved, allocated, pick_sequence, updated_at
		FROM inventory_records
		WHERE product_id = $1
		ORDER BY pick_sequence, location_id
	`, productID)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
