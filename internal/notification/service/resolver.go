package service

import (
	"context"
	"encoding/json"

	"github.com/stockflow/stockflow-backend/internal/notification/repository"
	"github.com/stockflow/stockflow-backend/pkg/events"
)

// RoleLister resolves a warehouse role to user ids.
type RoleLister interface {
	ListByRole(ctx context.Context, role string) ([]string, error)
}

// Resolver maps an event to the users who should hear about it. Approval
// decisions go back to the requestor, approval requests to the approver
// role, task assignments to the assigned workers and threshold alerts to
// inventory managers. Everything else lands with operations.
type Resolver struct {
	directory RoleLister
}

// NewResolver creates a recipient resolver
func NewResolver(directory RoleLister) *Resolver {
	return &Resolver{directory: directory}
}

// Recipients returns the user ids to notify for an event.
func (r *Resolver) Recipients(ctx context.Context, ev events.Event) ([]string, error) {
	switch ev.Name {
	case events.EventApprovalRequested:
		return r.directory.ListByRole(ctx, repository.RoleApprover)

	case events.EventApprovalDecided:
		var payload events.ApprovalDecidedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return nil, err
		}
		if payload.RequestorID == "" {
			return nil, nil
		}
		return []string{payload.RequestorID}, nil

	case events.EventTaskAssigned:
		var payload events.TaskAssignedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return nil, err
		}
		return payload.Workers, nil

	case events.EventThresholdAlert:
		return r.directory.ListByRole(ctx, repository.RoleInventoryManager)

	default:
		return r.directory.ListByRole(ctx, repository.RoleOperations)
	}
}
