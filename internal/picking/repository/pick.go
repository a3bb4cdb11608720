package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Pick types
const (
	TypeBatch   = "batch"
	TypeZone    = "zone"
	TypeCluster = "cluster"
)

// Batch strategies. They affect only the ordering of member items, computed
// at creation/optimize time, never mid-execution.
const (
	StrategyPriority          = "priority"
	StrategyDistanceOptimized = "distance_optimized"
	StrategyLocationBased     = "location_based"
)

// Pick is a warehouse picking work item: a multi-order batch, a physical
// zone pick or a spatial cluster pick.
type Pick struct {
	ID                string         `db:"id" json:"id"`
	WarehouseID       string         `db:"warehouse_id" json:"warehouse_id"`
	Type              string         `db:"type" json:"type"`
	Strategy          string         `db:"strategy" json:"strategy"`
	Zone              *string        `db:"zone" json:"zone,omitempty"`
	Status            string         `db:"status" json:"status"`
	Workers           pq.StringArray `db:"workers" json:"assigned_workers"`
	OptimizationScore *float64       `db:"optimization_score" json:"optimization_score,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`

	Items []*PickItem `db:"-" json:"items,omitempty"`
}

// PickItem is one product/location/quantity line of a pick. LocationSequence
// is a snapshot of the location's pick sequence at creation time and drives
// item ordering.
type PickItem struct {
	ID                string  `db:"id" json:"id"`
	PickID            string  `db:"pick_id" json:"pick_id"`
	ProductID         string  `db:"product_id" json:"product_id"`
	LocationID        string  `db:"location_id" json:"location_id"`
	FulfillmentItemID *string `db:"fulfillment_item_id" json:"fulfillment_item_id,omitempty"`
	OrderRef          string  `db:"order_ref" json:"order_ref"`
	Priority          int     `db:"priority" json:"priority"`
	Quantity          int     `db:"quantity" json:"quantity"`
	Sequence          int     `db:"sequence" json:"sequence"`
	LocationSequence  int     `db:"location_sequence" json:"location_sequence"`
	Picked            bool    `db:"picked" json:"picked"`
}

// PickRepository handles pick persistence
type PickRepository struct {
	db *database.DB
}

// NewPickRepository creates a new pick repository
func NewPickRepository(db *database.DB) *PickRepository {
	return &PickRepository{db: db}
}

// Create inserts a pick and its items.
func (r *PickRepository) Create(ctx context.Context, pick *Pick) error {
	if pick.ID == "" {
		pick.ID = uuid.New().String()
	}
	if pick.Workers == nil {
		pick.Workers = pq.StringArray{}
	}

	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO picks (id, warehouse_id, type, strategy, zone, status, workers, optimization_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`, pick.ID, pick.WarehouseID, pick.Type, pick.Strategy, pick.Zone,
		pick.Status, pick.Workers, pick.OptimizationScore)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	if err != nil {
		return err
	}

	for _, item := range pick.Items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.PickID = pick.ID

		_, err := r.db.Ext(ctx).ExecContext(ctx, `
			INSERT INTO pick_items (id, pick_id, product_id, location_id, fulfillment_item_id, order_ref, priority, quantity, sequence, location_sequence, picked)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, item.ID, item.PickID, item.ProductID, item.LocationID, item.FulfillmentItemID,
			item.OrderRef, item.Priority, item.Quantity, item.Sequence, item.LocationSequence, item.Picked)
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// GetForUpdate loads a pick with a row lock so lifecycle transitions on the
// same pick serialize. Items are loaded separately via LoadItems.
func (r *PickRepository) GetForUpdate(ctx context.Context, id string) (*Pick, error) {
	var pick Pick
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &pick, `
		SELECT id, warehouse_id, type, strategy, zone, status, workers, optimization_score, created_at, updated_at
		FROM picks
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("pick")
	}
	if err != nil {
		return nil, err
	}
	return &pick, nil
}

// GetByID loads a pick with its items.
func (r *PickRepository) GetByID(ctx context.Context, id string) (*Pick, error) {
	var pick Pick
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &pick, `
		SELECT id, warehouse_id, type, strategy, zone, status, workers, optimization_score, created_at, updated_at
		FROM picks
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("pick")
	}
	if err != nil {
		return nil, err
	}

	if err := r.LoadItems(ctx, &pick); err != nil {
		return nil, err
	}
	return &pick, nil
}

// LoadItems populates the pick's items in sequence order.
func (r *PickRepository) LoadItems(ctx context.Context, pick *Pick) error {
	var items []*PickItem
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &items, `
		SELECT id, pick_id, product_id, location_id, fulfillment_item_id, order_ref, priority, quantity, sequence, location_sequence, picked
		FROM pick_items
		WHERE pick_id = $1
		ORDER BY sequence
	`, pick.ID)
	if err != nil {
		return err
	}
	pick.Items = items
	return nil
}

// Update persists the pick's mutable columns.
func (r *PickRepository) Update(ctx context.Context, pick *Pick) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE picks
		SET status = $2, workers = $3, optimization_score = $4, updated_at = now()
		WHERE id = $1
	`, pick.ID, pick.Status, pick.Workers, pick.OptimizationScore)
	return err
}

// UpdateItemSequence persists one item's sequence.
func (r *PickRepository) UpdateItemSequence(ctx context.Context, itemID string, sequence int) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE pick_items
		SET sequence = $2
		WHERE id = $1
	`, itemID, sequence)
	return err
}

// MarkItemPicked flags one member item as picked.
func (r *PickRepository) MarkItemPicked(ctx context.Context, pickID, itemID string) error {
	res, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE pick_items
		SET picked = TRUE
		WHERE id = $1 AND pick_id = $2
	`, itemID, pickID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("pick item")
	}
	return nil
}

// ListByStatus returns picks in one status for a warehouse, oldest first.
func (r *PickRepository) ListByStatus(ctx context.Context, warehouseID, status string) ([]*Pick, error) {
	var picks []*Pick
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &picks, `
		SELECT id, warehouse_id, type, strategy, zone, status, workers, optimization_score, created_at, updated_at
		FROM picks
		WHERE warehouse_id = $1 AND status = $2
		ORDER BY created_at
	`, warehouseID, status)
	if err != nil {
		return nil, err
	}
	return picks, nil
}
