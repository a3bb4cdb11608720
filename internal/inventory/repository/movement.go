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

// Movement review statuses. Only movements flagged for review carry one.
const (
	ReviewPending  = "pending_review"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// Movement is one row of the append-only inventory movement log. Every
// on-hand mutation writes exactly one movement with the delta, the reason and
// the resulting quantity.
type Movement struct {
	ID              string    `db:"id" json:"id"`
	ProductID       string    `db:"product_id" json:"product_id"`
	LocationID      string    `db:"location_id" json:"location_id"`
	Delta           int       `db:"delta" json:"delta"`
	ResultingOnHand int       `db:"resulting_on_hand" json:"resulting_on_hand"`
	Reason          string    `db:"reason" json:"reason"`
	Reference       *string   `db:"reference" json:"reference,omitempty"`
	ActorID         *string   `db:"actor_id" json:"actor_id,omitempty"`
	ReviewStatus    *string   `db:"review_status" json:"review_status,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// MovementRepository handles the movement log
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Record appends a movement.
func (r *MovementRepository) Record(ctx context.Context, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, location_id, delta, resulting_on_hand, reason, reference, actor_id, review_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`, m.ID, m.ProductID, m.LocationID, m.Delta, m.ResultingOnHand,
		m.Reason, m.Reference, m.ActorID, m.ReviewStatus)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// GetByID loads a movement.
func (r *MovementRepository) GetByID(ctx context.Context, id string) (*Movement, error) {
	var m Movement
	err := sqlx.GetContext(ctx, r.db.Ext(ctx), &m, `
		SELECT id, product_id, location_id, delta, resulting_on_hand, reason, reference, actor_id, review_status, created_at
		FROM inventory_movements
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("movement")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetReviewStatus updates the review status of a movement pending review.
func (r *MovementRepository) SetReviewStatus(ctx context.Context, id, status string) error {
	res, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE inventory_movements
		SET review_status = $2
		WHERE id = $1 AND review_status = $3
	`, id, status, ReviewPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Conflict("movement is not pending review")
	}
	return nil
}

// ListByProduct returns movements for a product, newest first.
func (r *MovementRepository) ListByProduct(ctx context.Context, productID string, limit int) ([]*Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var ms []*Movement
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &ms, `
		SELECT id, product_id, location_id, delta, resulting_on_hand, reason, reference, actor_id, review_status, created_at
		FROM inventory_movements
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	return ms, nil
}
