package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Carrier is a shipping carrier with decimal rates. BaseRate applies once per
// shipment; RatePerKg scales with the aggregate weight.
type Carrier struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Code      string          `db:"code" json:"code"`
	BaseRate  decimal.Decimal `db:"base_rate" json:"base_rate"`
	RatePerKg decimal.Decimal `db:"rate_per_kg" json:"rate_per_kg"`
	IsDefault bool            `db:"is_default" json:"is_default"`
	IsActive  bool            `db:"is_active" json:"is_active"`
}

// CarrierRepository handles carrier persistence
type CarrierRepository struct {
	db *database.DB
}

// NewCarrierRepository creates a new carrier repository
func NewCarrierRepository(db *database.DB) *CarrierRepository {
	return &CarrierRepository{db: db}
}

// Create inserts a carrier.
func (r *CarrierRepository) Create(ctx context.Context, c *Carrier) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO carriers (id, name, code, base_rate, rate_per_kg, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Name, c.Code, c.BaseRate, c.RatePerKg, c.IsDefault, c.IsActive)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// GetByID loads a carrier.
func (r *CarrierRepository) GetByID(ctx context.Context, id string) (*Carrier, error) {
	var c Carrier
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &c, `
		SELECT id, name, code, base_rate, rate_per_kg, is_default, is_active
		FROM carriers
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("carrier")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the configured default carrier, falling back to the first
// active one. Errors when no active carrier exists.
func (r *CarrierRepository) Default(ctx context.Context) (*Carrier, error) {
	var c Carrier
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &c, `
		SELECT id, name, code, base_rate, rate_per_kg, is_default, is_active
		FROM carriers
		WHERE is_active = TRUE
		ORDER BY is_default DESC, name
		LIMIT 1
	`)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("active carrier")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
