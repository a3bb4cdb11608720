package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Route strategies
const (
	StrategyDistance = "distance"
)

// LoadPlan groups shipments onto one vehicle for a delivery run. The route
// fingerprint identifies the shipment set the stored stop sequence was
// computed for, so re-optimization of an unchanged set is a no-op.
type LoadPlan struct {
	ID               string     `db:"id" json:"id"`
	WarehouseID      string     `db:"warehouse_id" json:"warehouse_id"`
	VehicleID        string     `db:"vehicle_id" json:"vehicle_id"`
	DriverID         *string    `db:"driver_id" json:"driver_id,omitempty"`
	Status           string     `db:"status" json:"status"`
	Strategy         string     `db:"strategy" json:"strategy"`
	OriginLat        float64    `db:"origin_lat" json:"origin_lat"`
	OriginLon        float64    `db:"origin_lon" json:"origin_lon"`
	RouteFingerprint *string    `db:"route_fingerprint" json:"route_fingerprint,omitempty"`
	TotalDistanceKm  *float64   `db:"total_distance_km" json:"total_distance_km,omitempty"`
	DepartedAt       *time.Time `db:"departed_at" json:"departed_at,omitempty"`
	FuelLevel        *float64   `db:"fuel_level" json:"fuel_level,omitempty"`
	OdometerKm       *float64   `db:"odometer_km" json:"odometer_km,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// LoadPlanRepository handles load plan persistence
type LoadPlanRepository struct {
	db *database.DB
}

// NewLoadPlanRepository creates a new load plan repository
func NewLoadPlanRepository(db *database.DB) *LoadPlanRepository {
	return &LoadPlanRepository{db: db}
}

// Create inserts a load plan.
func (r *LoadPlanRepository) Create(ctx context.Context, p *LoadPlan) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO load_plans (id, warehouse_id, vehicle_id, driver_id, status, strategy, origin_lat, origin_lon, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`, p.ID, p.WarehouseID, p.VehicleID, p.DriverID, p.Status, p.Strategy, p.OriginLat, p.OriginLon)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// GetForUpdate loads a plan with a row lock so lifecycle transitions
// serialize.
func (r *LoadPlanRepository) GetForUpdate(ctx context.Context, id string) (*LoadPlan, error) {
	var p LoadPlan
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &p, `
		SELECT id, warehouse_id, vehicle_id, driver_id, status, strategy, origin_lat, origin_lon, route_fingerprint, total_distance_km, departed_at, fuel_level, odometer_km, created_at, updated_at
		FROM load_plans
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("load plan")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID loads a plan.
func (r *LoadPlanRepository) GetByID(ctx context.Context, id string) (*LoadPlan, error) {
	var p LoadPlan
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &p, `
		SELECT id, warehouse_id, vehicle_id, driver_id, status, strategy, origin_lat, origin_lon, route_fingerprint, total_distance_km, departed_at, fuel_level, odometer_km, created_at, updated_at
		FROM load_plans
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("load plan")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update persists the plan's mutable columns.
func (r *LoadPlanRepository) Update(ctx context.Context, p *LoadPlan) error {
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE load_plans
		SET status = $2, driver_id = $3, route_fingerprint = $4, total_distance_km = $5,
		    departed_at = $6, fuel_level = $7, odometer_km = $8, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Status, p.DriverID, p.RouteFingerprint, p.TotalDistanceKm,
		p.DepartedAt, p.FuelLevel, p.OdometerKm)
	return err
}
