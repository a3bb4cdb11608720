package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Notification statuses
const (
	StatusDelivered    = "delivered"
	StatusAcknowledged = "acknowledged"
)

// Notification is one delivered event for one recipient.
type Notification struct {
	ID             string     `db:"id" json:"id"`
	Recipient      string     `db:"recipient" json:"recipient"`
	EventID        string     `db:"event_id" json:"event_id"`
	EventName      string     `db:"event_name" json:"event_name"`
	Payload        []byte     `db:"payload" json:"payload"`
	Status         string     `db:"status" json:"status"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// NotificationRepository handles notification persistence
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Status == "" {
		n.Status = StatusDelivered
	}
	_, err := r.db.Ext(ctx).ExecContext(ctx, `
		INSERT INTO notifications (id, recipient, event_id, event_name, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, n.ID, n.Recipient, n.EventID, n.EventName, n.Payload, n.Status)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ListByRecipient returns a recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipient string, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*Notification
	err := sqlx.SelectContext(ctx, r.db.Ext(ctx), &out, `
		SELECT id, recipient, event_id, event_name, payload, status, acknowledged_at, created_at
		FROM notifications
		WHERE recipient = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipient, limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Acknowledge marks a notification read. Acknowledging twice is a no-op
// error-wise: the guard only rejects unknown ids.
func (r *NotificationRepository) Acknowledge(ctx context.Context, id string) error {
	res, err := r.db.Ext(ctx).ExecContext(ctx, `
		UPDATE notifications
		SET status = $2, acknowledged_at = COALESCE(acknowledged_at, now())
		WHERE id = $1
	`, id, StatusAcknowledged)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("notification")
	}
	return nil
}
