package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/pkg/database"
)

// Rule scopes
const (
	RuleScopeProduct  = "product"
	RuleScopeLocation = "location"
)

// Rule metrics
const (
	MetricOnHand    = "on_hand"
	MetricAvailable = "available"
)

// ThresholdRule is a configured comparison evaluated after every inventory
// mutation. Stateless: the rule itself never changes as a result of firing.
type ThresholdRule struct {
	ID            string    `db:"id" json:"id"`
	Scope         string    `db:"scope" json:"scope"`
	ProductID     *string   `db:"product_id" json:"product_id,omitempty"`
	LocationID    *string   `db:"location_id" json:"location_id,omitempty"`
	Metric        string    `db:"metric" json:"metric"`
	Operator      string    `db:"operator" json:"operator"`
	Value         int       `db:"value" json:"value"`
	CriticalValue *int      `db:"critical_value" json:"critical_value,omitempty"`
	Severity      string    `db:"severity" json:"severity"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RuleRepository handles threshold rule persistence
type RuleRepository struct {
	db *database.DB
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *database.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create creates a threshold rule
func (r *RuleRepository) Create(ctx context.Context, rule *ThresholdRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Severity == "" {
		rule.Severity = "warning"
	}

	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO threshold_rules (id, scope, product_id, location_id, metric, operator, value, critical_value, severity, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	`, rule.ID, rule.Scope, rule.ProductID, rule.LocationID, rule.Metric,
		rule.Operator, rule.Value, rule.CriticalValue, rule.Severity, rule.IsActive)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ListMatching returns the active rules that apply to the given (product,
// location) pair: product-scoped rules for the product and location-scoped
// rules for the location.
func (r *RuleRepository) ListMatching(ctx context.Context, productID, locationID string) ([]*ThresholdRule, error) {
	var rules []*ThresholdRule
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &rules, `
		SELECT id, scope, product_id, location_id, metric, operator, value, critical_value, severity, is_active, created_at
		FROM threshold_rules
		WHERE is_active
		  AND ((scope = $1 AND product_id = $3) OR (scope = $2 AND location_id = $4))
		ORDER BY created_at
	`, RuleScopeProduct, RuleScopeLocation, productID, locationID)
	if err != nil {
		return nil, err
	}
	return rules, nil
}
