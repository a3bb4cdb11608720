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

// AutomationRules controls which automation steps run for a fulfillment.
// Both default to enabled; an order source that manages its own carriers or
// staging can opt individual steps out.
type AutomationRules struct {
	AssignLocations bool `db:"auto_assign_locations" json:"assign_locations"`
	SelectCarrier   bool `db:"auto_select_carrier" json:"select_carrier"`
}

// DefaultAutomationRules enables every automation step.
func DefaultAutomationRules() AutomationRules {
	return AutomationRules{AssignLocations: true, SelectCarrier: true}
}

// OrderFulfillment tracks the warehouse-side progress of one order.
type OrderFulfillment struct {
	ID          string `db:"id" json:"id"`
	OrderRef    string `db:"order_ref" json:"order_ref"`
	WarehouseID string `db:"warehouse_id" json:"warehouse_id"`
	Status      string `db:"status" json:"status"`
	Priority    int    `db:"priority" json:"priority"`
	AutomationRules
	CarrierID    *string          `db:"carrier_id" json:"carrier_id,omitempty"`
	ShippingCost *decimal.Decimal `db:"shipping_cost" json:"shipping_cost,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`

	Items []*FulfillmentItem `db:"-" json:"items,omitempty"`
}

// FulfillmentItem is one order line. Remaining is maintained on every write
// as Ordered - Fulfilled; a CHECK constraint keeps it from going negative.
type FulfillmentItem struct {
	ID             string          `db:"id" json:"id"`
	FulfillmentID  string          `db:"fulfillment_id" json:"fulfillment_id"`
	ProductID      string          `db:"product_id" json:"product_id"`
	Ordered        int             `db:"ordered" json:"quantity_ordered"`
	Fulfilled      int             `db:"fulfilled" json:"quantity_fulfilled"`
	Remaining      int             `db:"remaining" json:"quantity_remaining"`
	UnitWeight     decimal.Decimal `db:"unit_weight" json:"unit_weight"`
	PickLocationID *string         `db:"pick_location_id" json:"pick_location_id,omitempty"`
}

// FulfillmentRepository handles fulfillment persistence
type FulfillmentRepository struct {
	db *database.DB
}

// NewFulfillmentRepository creates a new fulfillment repository
func NewFulfillmentRepository(db *database.DB) *FulfillmentRepository {
	return &FulfillmentRepository{db: db}
}

// Create inserts a fulfillment and its items atomically within the caller's
// transaction.
func (r *FulfillmentRepository) Create(ctx context.Context, f *OrderFulfillment) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO order_fulfillments (id, order_ref, warehouse_id, status, priority, auto_assign_locations, auto_select_carrier, carrier_id, shipping_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, f.ID, f.OrderRef, f.WarehouseID, f.Status, f.Priority, f.AssignLocations, f.SelectCarrier, f.CarrierID, f.ShippingCost)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	if err != nil {
		return err
	}

	for _, item := range f.Items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.FulfillmentID = f.ID
		item.Remaining = item.Ordered - item.Fulfilled

		_, err := r.db.Ext(ctx).ExecContext(ctx, `
			INSERT INTO fulfillment_items (id, fulfillment_id, product_id, ordered, fulfilled, remaining, unit_weight, pick_location_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, item.FulfillmentID, item.ProductID, item.Ordered, item.Fulfilled,
			item.Remaining, item.UnitWeight, item.PickLocationID)
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// GetForUpdate loads a fulfillment with a row lock.
func (r *FulfillmentRepository) GetForUpdate(ctx context.Context, id string) (*OrderFulfillment, error) {
	var f OrderFulfillment
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &f, `
		SELECT id, order_ref, warehouse_id, status, priority, auto_assign_locations, auto_select_carrier, carrier_id, shipping_cost, created_at, updated_at
		FROM order_fulfillments
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("fulfillment")
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetByID loads a fulfillment with its items.
func (r *FulfillmentRepository) GetByID(ctx context.Context, id string) (*OrderFulfillment, error) {
	var f OrderFulfillment
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &f, `
		SELECT id, order_ref, warehouse_id, status, priority, auto_assign_locations, auto_select_carrier, carrier_id, shipping_cost, created_at, updated_at
		FROM order_fulfillments
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("fulfillment")
	}
	if err != nil {
		return nil, err
	}

	if err := r.LoadItems(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadItems populates the fulfillment's items.
func (r *FulfillmentRepository) LoadItems(ctx context.Context, f *OrderFulfillment) error {
	var items []*FulfillmentItem
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &items, `
		SELECT id, fulfillment_id, product_id, ordered, fulfilled, remaining, unit_weight, pick_location_id
		FROM fulfillment_items
		WHERE fulfillment_id = $1
		ORDER BY product_id
	`, f.ID)
	if err != nil {
		return err
	}
	f.Items = items
	return nil
}

// Update persists the fulfillment's mutable columns.
func (r *FulfillmentRepository) Update(ctx context.Context, f *OrderFulfillment) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE order_fulfillments
		SET status = $2, carrier_id = $3, shipping_cost = $4, updated_at = now()
		WHERE id = $1
	`, f.ID, f.Status, f.CarrierID, f.ShippingCost)
	return err
}

// IncrementFulfilled bumps an item's fulfilled quantity, keeping remaining in
// step. The guard clause refuses increments beyond the remaining quantity so
// a pick can never over-fulfill an order line.
func (r *FulfillmentRepository) IncrementFulfilled(ctx context.Context, itemID string, quantity int) error {
	res, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE fulfillment_items
		SET fulfilled = fulfilled + $2, remaining = remaining - $2
		WHERE id = $1 AND remaining >= $2
	`, itemID, quantity)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Conflict("fulfillment item increment exceeds remaining quantity")
	}
	return nil
}

// AssignPickLocation stamps the chosen pick location on an item.
func (r *FulfillmentRepository) AssignPickLocation(ctx context.Context, itemID, locationID string) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE fulfillment_items
		SET pick_location_id = $2
		WHERE id = $1
	`, itemID, locationID)
	return err
}

// ListByWarehouse returns a warehouse's fulfillments in one status.
func (r *FulfillmentRepository) ListByWarehouse(ctx context.Context, warehouseID, status string) ([]*OrderFulfillment, error) {
	var out []*OrderFulfillment
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &out, `
		SELECT id, order_ref, warehouse_id, status, priority, auto_assign_locations, auto_select_carrier, carrier_id, shipping_cost, created_at, updated_at
		FROM order_fulfillments
		WHERE warehouse_id = $1 AND status = $2
		ORDER BY priority DESC, created_at
	`, warehouseID, status)
	if err != nil {
		return nil, err
	}
	return out, nil
}
