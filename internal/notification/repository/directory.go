package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/pkg/database"
)

// Warehouse roles used for recipient resolution.
const (
	RoleApprover         = "approver"
	RoleInventoryManager = "inventory_manager"
	RoleOperations       = "operations"
)

// Directory resolves warehouse roles to user ids.
type Directory struct {
	db *database.DB
}

// NewDirectory creates a user directory
func NewDirectory(db *database.DB) *Directory {
	return &Directory{db: db}
}

// ListByRole returns the ids of active users holding a role.
func (d *Directory) ListByRole(ctx context.Context, role string) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, d.db.Ext(ctx), &ids, `
		SELECT id
		FROM warehouse_users
		WHERE role = $1 AND is_active = TRUE
		ORDER BY id
	`, role)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
