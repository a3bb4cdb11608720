package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Shipment is one outbound delivery with its destination coordinates.
type Shipment struct {
	ID            string           `db:"id" json:"id"`
	FulfillmentID *string          `db:"fulfillment_id" json:"fulfillment_id,omitempty"`
	OrderRef      string           `db:"order_ref" json:"order_ref"`
	WarehouseID   string           `db:"warehouse_id" json:"warehouse_id"`
	Status        string           `db:"status" json:"status"`
	CarrierID     *string          `db:"carrier_id" json:"carrier_id,omitempty"`
	Address       string           `db:"address" json:"address"`
	DestLat       float64          `db:"dest_lat" json:"dest_lat"`
	DestLon       float64          `db:"dest_lon" json:"dest_lon"`
	Weight        *decimal.Decimal `db:"weight" json:"weight,omitempty"`
	LoadPlanID    *string          `db:"load_plan_id" json:"load_plan_id,omitempty"`
	StopSequence  *int             `db:"stop_sequence" json:"stop_sequence,omitempty"`
	ShippedAt     *time.Time       `db:"shipped_at" json:"shipped_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// ShipmentRepository handles shipment persistence
type ShipmentRepository struct {
	db *database.DB
}

// NewShipmentRepository creates a new shipment repository
func NewShipmentRepository(db *database.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// Create inserts a shipment.
func (r *ShipmentRepository) Create(ctx context.Context, s *Shipment) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO shipments (id, fulfillment_id, order_ref, warehouse_id, status, carrier_id, address, dest_lat, dest_lon, weight, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`, s.ID, s.FulfillmentID, s.OrderRef, s.WarehouseID, s.Status, s.CarrierID,
		s.Address, s.DestLat, s.DestLon, s.Weight)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// GetForUpdate loads a shipment with a row lock.
func (r *ShipmentRepository) GetForUpdate(ctx context.Context, id string) (*Shipment, error) {
	var s Shipment
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &s, `
		SELECT id, fulfillment_id, order_ref, warehouse_id, status, carrier_id, address, dest_lat, dest_lon, weight, load_plan_id, stop_sequence, shipped_at, created_at, updated_at
		FROM shipments
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("shipment")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID loads a shipment.
func (r *ShipmentRepository) GetByID(ctx context.Context, id string) (*Shipment, error) {
	var s Shipment
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &s, `
		SELECT id, fulfillment_id, order_ref, warehouse_id, status, carrier_id, address, dest_lat, dest_lon, weight, load_plan_id, stop_sequence, shipped_at, created_at, updated_at
		FROM shipments
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("shipment")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByPlan returns a load plan's shipments ordered by stop sequence.
func (r *ShipmentRepository) ListByPlan(ctx context.Context, planID string) ([]*Shipment, error) {
	var out []*Shipment
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &out, `
		SELECT id, fulfillment_id, order_ref, warehouse_id, status, carrier_id, address, dest_lat, dest_lon, weight, load_plan_id, stop_sequence, shipped_at, created_at, updated_at
		FROM shipments
		WHERE load_plan_id = $1
		ORDER BY stop_sequence NULLS LAST, id
	`, planID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AttachToPlan links a shipment to a load plan. The guard refuses shipments
// already on another plan.
func (r *ShipmentRepository) AttachToPlan(ctx context.Context, shipmentID, planID string) error {
	res, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE shipments
		SET load_plan_id = $2, updated_at = now()
		WHERE id = $1 AND load_plan_id IS NULL
	`, shipmentID, planID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Conflict("shipment " + shipmentID + " is missing or already on a load plan")
	}
	return nil
}

// SetStopSequence stamps a shipment's position on the route.
func (r *ShipmentRepository) SetStopSequence(ctx context.Context, shipmentID string, sequence int) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE shipments
		SET stop_sequence = $2, updated_at = now()
		WHERE id = $1
	`, shipmentID, sequence)
	return err
}

// UpdateStatus persists a shipment's status; shipped status also stamps
// shipped_at.
func (r *ShipmentRepository) UpdateStatus(ctx context.Context, shipmentID, status string, shippedAt *time.Time) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE shipments
		SET status = $2, shipped_at = $3, updated_at = now()
		WHERE id = $1
	`, shipmentID, status, shippedAt)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}
