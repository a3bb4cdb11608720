package testutil

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// FixtureFactory seeds test data directly through SQL, bypassing the domain
// services, so tests can arrange arbitrary starting states.
type FixtureFactory struct {
	db *sqlx.DB
}

// NewFixtureFactory creates a fixture factory
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

// InventoryRecord seeds one (product, location) quantity row.
func (f *FixtureFactory) InventoryRecord(ctx context.Context, productID, locationID string, onHand, reserved, pickSequence int) error {
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO inventory_records (product_id, location_id, on_hand, reserved, allocated, pick_sequence)
		VALUES ($1, $2, $3, $4, 0, $5)
	`, productID, locationID, onHand, reserved, pickSequence)
	if err != nil {
		return fmt.Errorf("seed inventory record: %w", err)
	}
	return nil
}

// ThresholdRule seeds a product-scoped threshold rule.
func (f *FixtureFactory) ThresholdRule(ctx context.Context, productID, metric, operator string, value int, criticalValue *int) (string, error) {
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO threshold_rules (id, scope, product_id, metric, operator, value, critical_value, severity, is_active)
		VALUES ($1, 'product', $2, $3, $4, $5, $6, 'warning', TRUE)
	`, id, productID, metric, operator, value, criticalValue)
	if err != nil {
		return "", fmt.Errorf("seed threshold rule: %w", err)
	}
	return id, nil
}

// Carrier seeds an active carrier; the first one seeded is usually the
// default.
func (f *FixtureFactory) Carrier(ctx context.Context, name, code string, baseRate, ratePerKg string, isDefault bool) (string, error) {
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO carriers (id, name, code, base_rate, rate_per_kg, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	`, id, name, code, baseRate, ratePerKg, isDefault)
	if err != nil {
		return "", fmt.Errorf("seed carrier: %w", err)
	}
	return id, nil
}

// User seeds one warehouse user with a role.
func (f *FixtureFactory) User(ctx context.Context, name, role string) (string, error) {
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO warehouse_users (id, name, role, is_active)
		VALUES ($1, $2, $3, TRUE)
	`, id, name, role)
	if err != nil {
		return "", fmt.Errorf("seed user: %w", err)
	}
	return id, nil
}
