package service

import (
	"context"

	invrepo "github.com/stockflow/stockflow-backend/internal/inventory/repository"
	invservice "github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/internal/picking/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/lifecycle"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// FulfillmentItems is the slice of the fulfillment domain the orchestrator
// needs when a pick completes: bump the fulfilled quantity on linked order
// items.
type FulfillmentItems interface {
	IncrementFulfilled(ctx context.Context, itemID string, quantity int) error
}

// Orchestrator drives pick lifecycles. Every mutation runs through the
// operation runner; inventory effects go through the ledger inside the same
// transaction.
type Orchestrator struct {
	runner       *operation.Runner
	picks        *repository.PickRepository
	records      *invrepo.RecordRepository
	ledger       *invservice.Ledger
	fulfillments FulfillmentItems
	machine      *lifecycle.Machine
	logger       *logger.Logger
}

// NewOrchestrator creates a pick orchestrator
func NewOrchestrator(
	runner *operation.Runner,
	picks *repository.PickRepository,
	records *invrepo.RecordRepository,
	ledger *invservice.Ledger,
	fulfillments FulfillmentItems,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		runner:       runner,
		picks:        picks,
		records:      records,
		ledger:       ledger,
		fulfillments: fulfillments,
		machine:      lifecycle.PickMachine(),
		logger:       log.WithComponent("pick-orchestrator"),
	}
}

// CreateItem is one requested line of a new pick.
type CreateItem struct {
	ProductID         string  `json:"product_id" validate:"required"`
	LocationID        string  `json:"location_id" validate:"required"`
	Quantity          int     `json:"quantity" validate:"required,gt=0"`
	OrderRef          string  `json:"order_ref" validate:"required"`
	Priority          int     `json:"priority"`
	FulfillmentItemID *string `json:"fulfillment_item_id,omitempty"`
}

// CreateRequest is the payload of the pick creation operation.
type CreateRequest struct {
	WarehouseID string       `json:"warehouse_id" validate:"required"`
	Type        string       `json:"type" validate:"required,oneof=batch zone cluster"`
	Strategy    string       `json:"strategy" validate:"required,oneof=priority distance_optimized location_based"`
	Zone        *string      `json:"zone,omitempty"`
	Items       []CreateItem `json:"items" validate:"required,min=1,dive"`
}

// CreateResult is the stored result of the pick creation operation.
type CreateResult struct {
	PickID string `json:"pick_id"`
	Status string `json:"status"`
}

// Create builds a pick in pending state with its items sequenced per the
// requested strategy. Zone picks require a zone.
func (o *Orchestrator) Create(ctx context.Context, idempotencyKey string, req CreateRequest) (operation.Result, error) {
	return o.runner.Execute(ctx, idempotencyKey, "pick.create", req,
		func(ctx context.Context) (any, error) {
			if req.Type == repository.TypeZone && (req.Zone == nil || *req.Zone == "") {
				return nil, errors.Validation(map[string]string{"zone": "required for zone picks"})
			}

			items := make([]*repository.PickItem, 0, len(req.Items))
			for _, in := range req.Items {
				item := &repository.PickItem{
					ProductID:         in.ProductID,
					LocationID:        in.LocationID,
					Quantity:          in.Quantity,
					OrderRef:          in.OrderRef,
					Priority:          in.Priority,
					FulfillmentItemID: in.FulfillmentItemID,
				}
				rec, err := o.records.Get(ctx, in.ProductID, in.LocationID)
				if err != nil {
					return nil, err
				}
				if rec != nil {
					item.LocationSequence = rec.PickSequence
				}
				items = append(items, item)
			}
			OrderItems(req.Strategy, items)

			pick := &repository.Pick{
				WarehouseID: req.WarehouseID,
				Type:        req.Type,
				Strategy:    req.Strategy,
				Zone:        req.Zone,
				Status:      string(lifecycle.StatePending),
				Items:       items,
			}
			if err := o.picks.Create(ctx, pick); err != nil {
				return nil, err
			}

			return CreateResult{PickID: pick.ID, Status: pick.Status}, nil
		})
}

// AssignRequest is the payload of the pick assignment operation.
type AssignRequest struct {
	PickID  string   `json:"pick_id" validate:"required"`
	Workers []string `json:"workers" validate:"required,min=1"`
}

// AssignResult is the stored result of the pick assignment operation.
type AssignResult struct {
	PickID string `json:"pick_id"`
	Status string `json:"status"`
}

// Assign moves a pending pick to assigned, reserving every member item's
// quantity. A single short item fails the whole assignment and leaves the
// pick pending with nothing reserved.
func (o *Orchestrator) Assign(ctx context.Context, idempotencyKey string, req AssignRequest) (operation.Result, error) {
	return o.runner.Execute(ctx, idempotencyKey, "pick.assign", req,
		func(ctx context.Context) (any, error) {
			pick, err := o.picks.GetForUpdate(ctx, req.PickID)
			if err != nil {
				return nil, err
			}

			next, err := o.machine.Transition(pick.ID, lifecycle.State(pick.Status), lifecycle.StateAssigned)
			if err != nil {
				return nil, err
			}

			if err := o.picks.LoadItems(ctx, pick); err != nil {
				return nil, err
			}
			for _, item := range pick.Items {
				if err := o.ledger.Reserve(ctx, item.ProductID, item.LocationID, item.Quantity); err != nil {
					return nil, err
				}
			}

			pick.Status = string(next)
			pick.Workers = req.Workers
			if err := o.picks.Update(ctx, pick); err != nil {
				return nil, err
			}

			if err := events.Raise(ctx, events.EventTaskAssigned, events.TaskAssignedPayload{
				TaskType: "pick",
				TaskID:   pick.ID,
				Workers:  req.Workers,
			}); err != nil {
				return nil, err
			}

			return AssignResult{PickID: pick.ID, Status: pick.Status}, nil
		})
}

// TransitionRequest is the payload of the start and complete operations.
type TransitionRequest struct {
	PickID  string `json:"pick_id" validate:"required"`
	ActorID string `json:"actor_id,omitempty"`
}

// TransitionResult is the stored result of a pick lifecycle transition.
type TransitionResult struct {
	PickID string `json:"pick_id"`
	Status string `json:"status"`
}

// Start moves an assigned pick to in_progress. Starting a pick already in
// progress succeeds without effect.
func (o *Orchestrator) Start(ctx context.Context, idempotencyKey string, req TransitionRequest) (operation.Result, error) {
	return o.runner.Execute(ctx, idempotencyKey, "pick.start", req,
		func(ctx context.Context) (any, error) {
			pick, err := o.picks.GetForUpdate(ctx, req.PickID)
			if err != nil {
				return nil, err
			}

			if lifecycle.State(pick.Status) == lifecycle.StateInProgress {
				return TransitionResult{PickID: pick.ID, Status: pick.Status}, nil
			}

			next, err := o.machine.Transition(pick.ID, lifecycle.State(pick.Status), lifecycle.StateInProgress)
			if err != nil {
				return nil, err
			}

			pick.Status = string(next)
			if err := o.picks.Update(ctx, pick); err != nil {
				return nil, err
			}

			return TransitionResult{PickID: pick.ID, Status: pick.Status}, nil
		})
}

// MarkItemRequest is the payload of the item-picked operation.
type MarkItemRequest struct {
	PickID  string `json:"pick_id" validate:"required"`
	ItemID  string `json:"item_id" validate:"required"`
	ActorID string `json:"actor_id,omitempty"`
}

// MarkItemResult is the stored result of the item-picked operation.
type MarkItemResult struct {
	PickID string `json:"pick_id"`
	ItemID string `json:"item_id"`
}

// MarkItemPicked flags a member item as physically picked. Only valid while
// the pick is in progress.
func (o *Orchestrator) MarkItemPicked(ctx context.Context, idempotencyKey string, req MarkItemRequest) (operation.Result, error) {
	return o.runner.Execute(ctx, idempotencyKey, "pick.item", req,
		func(ctx context.Context) (any, error) {
			pick, err := o.picks.GetForUpdate(ctx, req.PickID)
			if err != nil {
				return nil, err
			}
			if lifecycle.State(pick.Status) != lifecycle.StateInProgress {
				return nil, errors.StateTransition("pick", pick.ID, pick.Status, "item_picked")
			}

			if err := o.picks.MarkItemPicked(ctx, req.PickID, req.ItemID); err != nil {
				return nil, err
			}

			return MarkItemResult{PickID: req.PickID, ItemID: req.ItemID}, nil
		})
}

// Complete moves an in-progress pick to completed: every member item must be
// picked, reservations are consumed into on-hand decrements, and linked
// fulfillment items have their fulfilled quantities bumped. All inside one
// transaction with the status change.
func (o *Orchestrator) Complete(ctx context.Context, idempotencyKey string, req TransitionRequest) (operation.Result, error) {
	return o.runner.Execute(ctx, idempotencyKey, "pick.complete", req,
		func(ctx context.Context) (any, error) {
			pick, err := o.picks.GetForUpdate(ctx, req.PickID)
			if err != nil {
				return nil, err
			}

			next, err := o.machine.Transition(pick.ID, lifecycle.State(pick.Status), lifecycle.StateCompleted)
			if err != nil {
				return nil, err
			}

			if err := o.picks.LoadItems(ctx, pick); err != nil {
				return nil, err
			}
			for _, item := range pick.Items {
				if !item.Picked {
					return nil, errors.Validation(map[string]string{"items": "item " + item.ID + " has not been picked"})
				}
			}

			actor := optional(req.ActorID)
			for _, item := range pick.Items {
				if err := o.ledger.ConsumeReservation(ctx, item.ProductID, item.LocationID, item.Quantity, pick.ID, actor); err != nil {
					return nil, err
				}
				if item.FulfillmentItemID != nil {
					if err := o.fulfillments.IncrementFulfilled(ctx, *item.FulfillmentItemID, item.Quantity); err != nil {
						return nil, err
					}
				}
			}

			pick.Status = string(next)
			if err := o.picks.Update(ctx, pick); err != nil {
				return nil, err
			}

			if err := events.Raise(ctx, events.EventPickCompleted, events.PickCompletedPayload{
				PickID:    pick.ID,
				PickType:  pick.Type,
				Warehouse: pick.WarehouseID,
				ItemCount: len(pick.Items),
			}); err != nil {
				return nil, err
			}

			return TransitionResult{PickID: pick.ID, Status: pick.Status}, nil
		})
}

// OptimizeRequest is the payload of the cluster optimization operation.
type OptimizeRequest struct {
	PickID string `json:"pick_id" validate:"required"`
}

// OptimizeResult is the stored result of the cluster optimization operation.
type OptimizeResult struct {
	PickID string  `json:"pick_id"`
	Score  float64 `json:"score"`
}

// Optimize resequences a cluster pick along the warehouse walk path and
// stores the route score. Only cluster picks qualify, and only before
// execution starts.
func (o *Orchestrator) Optimize(ctx context.Context, idempotencyKey string, req OptimizeRequest) (operation.Result, error) {
	return o.runner.Execute(ctx, idempotencyKey, "pick.optimize", req,
		func(ctx context.Context) (any, error) {
			pick, err := o.picks.GetForUpdate(ctx, req.PickID)
			if err != nil {
				return nil, err
			}
			if pick.Type != repository.TypeCluster {
				return nil, errors.Validation(map[string]string{"pick_id": "only cluster picks can be optimized"})
			}
			switch lifecycle.State(pick.Status) {
			case lifecycle.StatePending, lifecycle.StateAssigned:
			default:
				return nil, errors.StateTransition("pick", pick.ID, pick.Status, "optimize")
			}

			if err := o.picks.LoadItems(ctx, pick); err != nil {
				return nil, err
			}

			score := ScoreCluster(pick.Items)
			for _, item := range pick.Items {
				if err := o.picks.UpdateItemSequence(ctx, item.ID, item.Sequence); err != nil {
					return nil, err
				}
			}

			pick.OptimizationScore = &score
			if err := o.picks.Update(ctx, pick); err != nil {
				return nil, err
			}

			return OptimizeResult{PickID: pick.ID, Score: score}, nil
		})
}

// Get returns a pick with its items.
func (o *Orchestrator) Get(ctx context.Context, pickID string) (*repository.Pick, error) {
	return o.picks.GetByID(ctx, pickID)
}

// ListByStatus returns a warehouse's picks in one status.
func (o *Orchestrator) ListByStatus(ctx context.Context, warehouseID, status string) ([]*repository.Pick, error) {
	return o.picks.ListByStatus(ctx, warehouseID, status)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
