package service

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// InventoryService exposes the inventory use cases. Every mutation goes
// through the operation runner so it is idempotent and transactional.
type InventoryService struct {
	runner    *operation.Runner
	ledger    *Ledger
	records   *repository.RecordRepository
	movements *repository.MovementRepository
	logger    *logger.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	runner *operation.Runner,
	ledger *Ledger,
	records *repository.RecordRepository,
	movements *repository.MovementRepository,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		runner:    runner,
		ledger:    ledger,
		records:   records,
		movements: movements,
		logger:    log,
	}
}

// AdjustRequest is the payload of the adjust operation.
type AdjustRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	LocationID string `json:"location_id" validate:"required"`
	Delta      int    `json:"delta" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
	ActorID    string `json:"actor_id,omitempty"`
}

// AdjustResult is the stored result of the adjust operation.
type AdjustResult struct {
	ProductID   string `json:"product_id"`
	LocationID  string `json:"location_id"`
	NewQuantity int    `json:"new_quantity"`
}

// Adjust applies a signed quantity delta at one location.
func (s *InventoryService) Adjust(ctx context.Context, idempotencyKey string, req AdjustRequest) (operation.Result, error) {
	return s.runner.Execute(ctx, idempotencyKey, "inventory.adjust", req,
		func(ctx context.Context) (any, error) {
			newQuantity, err := s.ledger.Adjust(ctx, req.ProductID, req.LocationID, req.Delta, req.Reason, optional(req.ActorID))
			if err != nil {
				return nil, err
			}
			return AdjustResult{
				ProductID:   req.ProductID,
				LocationID:  req.LocationID,
				NewQuantity: newQuantity,
			}, nil
		})
}

// TransferRequest is the payload of the transfer operation.
type TransferRequest struct {
	ProductID      string `json:"product_id" validate:"required"`
	FromLocationID string `json:"from_location_id" validate:"required"`
	ToLocationID   string `json:"to_location_id" validate:"required"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	Reason         string `json:"reason" validate:"required"`
	ActorID        string `json:"actor_id,omitempty"`
}

// TransferResult is the stored result of the transfer operation.
type TransferResult struct {
	ProductID      string `json:"product_id"`
	FromLocationID string `json:"from_location_id"`
	ToLocationID   string `json:"to_location_id"`
	Quantity       int    `json:"quantity"`
}

// Transfer moves quantity between two locations, both legs or neither.
func (s *InventoryService) Transfer(ctx context.Context, idempotencyKey string, req TransferRequest) (operation.Result, error) {
	return s.runner.Execute(ctx, idempotencyKey, "inventory.transfer", req,
		func(ctx context.Context) (any, error) {
			if err := s.ledger.Transfer(ctx, req.ProductID, req.FromLocationID, req.ToLocationID, req.Quantity, req.Reason, optional(req.ActorID)); err != nil {
				return nil, err
			}
			return TransferResult{
				ProductID:      req.ProductID,
				FromLocationID: req.FromLocationID,
				ToLocationID:   req.ToLocationID,
				Quantity:       req.Quantity,
			}, nil
		})
}

// ReviewRequest is the payload of the movement review operation.
type ReviewRequest struct {
	MovementID string `json:"movement_id" validate:"required"`
	Decision   string `json:"decision" validate:"required,oneof=approved rejected"`
	ReviewerID string `json:"reviewer_id" validate:"required"`
}

// ReviewResult is the stored result of the movement review operation.
type ReviewResult struct {
	MovementID string `json:"movement_id"`
	Decision   string `json:"decision"`
}

// ReviewMovement records a supervisor decision on a flagged adjustment and
// notifies the requestor through the approval.decided event.
func (s *InventoryService) ReviewMovement(ctx context.Context, idempotencyKey string, req ReviewRequest) (operation.Result, error) {
	return s.runner.Execute(ctx, idempotencyKey, "inventory.review", req,
		func(ctx context.Context) (any, error) {
			movement, err := s.movements.GetByID(ctx, req.MovementID)
			if err != nil {
				return nil, err
			}

			if err := s.movements.SetReviewStatus(ctx, req.MovementID, req.Decision); err != nil {
				return nil, err
			}

			requestor := "system"
			if movement.ActorID != nil {
				requestor = *movement.ActorID
			}
			if err := events.Raise(ctx, events.EventApprovalDecided, events.ApprovalDecidedPayload{
				ApprovalID:  movement.ID,
				RequestorID: requestor,
				Decision:    req.Decision,
				DecidedBy:   req.ReviewerID,
			}); err != nil {
				return nil, err
			}

			return ReviewResult{MovementID: req.MovementID, Decision: req.Decision}, nil
		})
}

// GetRecord returns the quantity state for one (product, location) pair.
func (s *InventoryService) GetRecord(ctx context.Context, productID, locationID string) (*repository.InventoryRecord, error) {
	rec, err := s.records.Get(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.NotFound("inventory record")
	}
	return rec, nil
}

// ListRecords returns all records for a product.
func (s *InventoryService) ListRecords(ctx context.Context, productID string) ([]*repository.InventoryRecord, error) {
	return s.records.ListByProduct(ctx, productID)
}

// ListMovements returns recent movements for a product.
func (s *InventoryService) ListMovements(ctx context.Context, productID string, limit int) ([]*repository.Movement, error) {
	return s.movements.ListByProduct(ctx, productID, limit)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
