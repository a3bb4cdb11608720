package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/internal/fulfillment/repository"
	invrepo "github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/lifecycle"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// AutomationEngine processes incoming orders end to end in a single
// idempotent operation: availability aggregation, pick location assignment,
// carrier selection, shipping cost and the pending to in_progress transition
// all commit or roll back together. The order's automation rules can disable
// location assignment and carrier selection individually.
type AutomationEngine struct {
	runner       *operation.Runner
	fulfillments *repository.FulfillmentRepository
	carriers     *repository.CarrierRepository
	records      *invrepo.RecordRepository
	machine      *lifecycle.Machine
	logger       *logger.Logger
}

// NewAutomationEngine creates a fulfillment automation engine
func NewAutomationEngine(
	runner *operation.Runner,
	fulfillments *repository.FulfillmentRepository,
	carriers *repository.CarrierRepository,
	records *invrepo.RecordRepository,
	log *logger.Logger,
) *AutomationEngine {
	return &AutomationEngine{
		runner:       runner,
		fulfillments: fulfillments,
		carriers:     carriers,
		records:      records,
		machine:      lifecycle.FulfillmentMachine(),
		logger:       log.WithComponent("fulfillment-automation"),
	}
}

// ProcessItem is one requested order line.
type ProcessItem struct {
	ProductID  string          `json:"product_id" validate:"required"`
	Quantity   int             `json:"quantity" validate:"required,gt=0"`
	UnitWeight decimal.Decimal `json:"unit_weight"`
}

// ProcessRequest is the payload of the order processing operation. Rules
// default to fully automatic when omitted.
type ProcessRequest struct {
	OrderRef    string                      `json:"order_ref" validate:"required"`
	WarehouseID string                      `json:"warehouse_id" validate:"required"`
	Priority    int                         `json:"priority" validate:"gte=0"`
	Rules       *repository.AutomationRules `json:"automation_rules,omitempty"`
	Items       []ProcessItem               `json:"items" validate:"required,min=1,dive"`
}

// ItemAssignment reports where one order line will be picked from.
type ItemAssignment struct {
	ItemID     string `json:"item_id"`
	ProductID  string `json:"product_id"`
	LocationID string `json:"location_id"`
	Quantity   int    `json:"quantity"`
}

// ProcessResult is the stored result of the order processing operation.
// CarrierID and ShippingCost are empty when carrier selection was disabled.
type ProcessResult struct {
	FulfillmentID string           `json:"fulfillment_id"`
	Status        string           `json:"status"`
	CarrierID     string           `json:"carrier_id,omitempty"`
	ShippingCost  decimal.Decimal  `json:"shipping_cost"`
	Assignments   []ItemAssignment `json:"assignments,omitempty"`
}

// Process runs the automation steps for one order. Aggregate availability is
// checked first so a short product fails the whole order before anything is
// written.
func (e *AutomationEngine) Process(ctx context.Context, idempotencyKey string, req ProcessRequest) (operation.Result, error) {
	return e.runner.Execute(ctx, idempotencyKey, "fulfillment.process", req,
		func(ctx context.Context) (any, error) {
			// Step 1: aggregate availability per product across locations.
			perProduct := make(map[string][]*invrepo.InventoryRecord, len(req.Items))
			for _, item := range req.Items {
				recs, err := e.records.ListByProduct(ctx, item.ProductID)
				if err != nil {
					return nil, err
				}
				available := 0
				for _, rec := range recs {
					available += rec.Available()
				}
				if available < item.Quantity {
					return nil, errors.InsufficientInventory(item.ProductID, "any", item.Quantity, available)
				}
				perProduct[item.ProductID] = recs
			}

			rules := repository.DefaultAutomationRules()
			if req.Rules != nil {
				rules = *req.Rules
			}

			f := &repository.OrderFulfillment{
				OrderRef:        req.OrderRef,
				WarehouseID:     req.WarehouseID,
				Status:          string(lifecycle.StatePending),
				Priority:        req.Priority,
				AutomationRules: rules,
			}
			for _, item := range req.Items {
				f.Items = append(f.Items, &repository.FulfillmentItem{
					ProductID:  item.ProductID,
					Ordered:    item.Quantity,
					UnitWeight: item.UnitWeight,
				})
			}
			if err := e.fulfillments.Create(ctx, f); err != nil {
				return nil, err
			}

			// Step 2: assign pick locations. Prefer the lowest-pick-sequence
			// location that covers the whole line; split across locations only
			// when no single one suffices. The pick orchestrator handles
			// per-location lines.
			var assignments []ItemAssignment
			if rules.AssignLocations {
				for i, item := range f.Items {
					need := item.Ordered
					recs := perProduct[item.ProductID]
					for _, rec := range recs {
						if rec.Available() >= need {
							recs = []*invrepo.InventoryRecord{rec}
							break
						}
					}
					for _, rec := range recs {
						if need == 0 {
							break
						}
						avail := rec.Available()
						if avail <= 0 {
							continue
						}
						take := need
						if take > avail {
							take = avail
						}
						if item.PickLocationID == nil {
							loc := rec.LocationID
							item.PickLocationID = &loc
							if err := e.fulfillments.AssignPickLocation(ctx, item.ID, loc); err != nil {
								return nil, err
							}
						}
						assignments = append(assignments, ItemAssignment{
							ItemID:     item.ID,
							ProductID:  item.ProductID,
							LocationID: rec.LocationID,
							Quantity:   take,
						})
						need -= take
					}
					if need > 0 {
						return nil, errors.InsufficientInventory(req.Items[i].ProductID, "any", need, 0)
					}
				}
			}

			// Steps 3 and 4: carrier selection and shipping cost, when the
			// rules enable them.
			var carrierID string
			cost := decimal.Zero
			if rules.SelectCarrier {
				carrier, err := e.carriers.Default(ctx)
				if err != nil {
					return nil, err
				}

				totalWeight := decimal.Zero
				for _, item := range req.Items {
					totalWeight = totalWeight.Add(item.UnitWeight.Mul(decimal.NewFromInt(int64(item.Quantity))))
				}
				cost = carrier.BaseRate.Add(carrier.RatePerKg.Mul(totalWeight))

				carrierID = carrier.ID
				f.CarrierID = &carrier.ID
				f.ShippingCost = &cost
			}

			// Step 5: pending -> in_progress.
			next, err := e.machine.Transition(f.ID, lifecycle.State(f.Status), lifecycle.StateInProgress)
			if err != nil {
				return nil, err
			}
			f.Status = string(next)
			if err := e.fulfillments.Update(ctx, f); err != nil {
				return nil, err
			}

			payload := events.FulfillmentProcessedPayload{
				FulfillmentID: f.ID,
				SalesOrderRef: f.OrderRef,
				Status:        f.Status,
				CarrierID:     carrierID,
			}
			if rules.SelectCarrier {
				payload.ShippingCost = cost.String()
			}
			if err := events.Raise(ctx, events.EventFulfillmentProcessed, payload); err != nil {
				return nil, err
			}

			return ProcessResult{
				FulfillmentID: f.ID,
				Status:        f.Status,
				CarrierID:     carrierID,
				ShippingCost:  cost,
				Assignments:   assignments,
			}, nil
		})
}

// TransitionRequest is the payload of the complete and cancel operations.
type TransitionRequest struct {
	FulfillmentID string `json:"fulfillment_id" validate:"required"`
	ActorID       string `json:"actor_id,omitempty"`
}

// TransitionResult is the stored result of a fulfillment transition.
type TransitionResult struct {
	FulfillmentID string `json:"fulfillment_id"`
	Status        string `json:"status"`
}

// Complete moves an in-progress fulfillment to completed. Every item must be
// fully fulfilled.
func (e *AutomationEngine) Complete(ctx context.Context, idempotencyKey string, req TransitionRequest) (operation.Result, error) {
	return e.runner.Execute(ctx, idempotencyKey, "fulfillment.complete", req,
		func(ctx context.Context) (any, error) {
			f, err := e.fulfillments.GetForUpdate(ctx, req.FulfillmentID)
			if err != nil {
				return nil, err
			}

			next, err := e.machine.Transition(f.ID, lifecycle.State(f.Status), lifecycle.StateCompleted)
			if err != nil {
				return nil, err
			}

			if err := e.fulfillments.LoadItems(ctx, f); err != nil {
				return nil, err
			}
			for _, item := range f.Items {
				if item.Remaining > 0 {
					return nil, errors.Validation(map[string]string{
						"items": "product " + item.ProductID + " has unfulfilled quantity",
					})
				}
			}

			f.Status = string(next)
			if err := e.fulfillments.Update(ctx, f); err != nil {
				return nil, err
			}

			return TransitionResult{FulfillmentID: f.ID, Status: f.Status}, nil
		})
}

// Cancel cancels a pending or in-progress fulfillment.
func (e *AutomationEngine) Cancel(ctx context.Context, idempotencyKey string, req TransitionRequest) (operation.Result, error) {
	return e.runner.Execute(ctx, idempotencyKey, "fulfillment.cancel", req,
		func(ctx context.Context) (any, error) {
			f, err := e.fulfillments.GetForUpdate(ctx, req.FulfillmentID)
			if err != nil {
				return nil, err
			}

			next, err := e.machine.Transition(f.ID, lifecycle.State(f.Status), lifecycle.StateCancelled)
			if err != nil {
				return nil, err
			}

			f.Status = string(next)
			if err := e.fulfillments.Update(ctx, f); err != nil {
				return nil, err
			}

			return TransitionResult{FulfillmentID: f.ID, Status: f.Status}, nil
		})
}

// Get returns a fulfillment with its items.
func (e *AutomationEngine) Get(ctx context.Context, id string) (*repository.OrderFulfillment, error) {
	return e.fulfillments.GetByID(ctx, id)
}

// ListByWarehouse returns a warehouse's fulfillments in one status.
func (e *AutomationEngine) ListByWarehouse(ctx context.Context, warehouseID, status string) ([]*repository.OrderFulfillment, error) {
	return e.fulfillments.ListByWarehouse(ctx, warehouseID, status)
}
