package service

import (
	"context"
	"sort"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Ledger is the only code path that mutates inventory quantities. Every
// method expects to run inside the caller's unit of work (the operation
// runner's transaction); row locks taken by GetForUpdate serialize concurrent
// mutations of the same (product, location) pair.
type Ledger struct {
	records   *repository.RecordRepository
	rules     *repository.RuleRepository
	movements *repository.MovementRepository
	logger    *logger.Logger
}

// NewLedger creates a ledger service
func NewLedger(
	records *repository.RecordRepository,
	rules *repository.RuleRepository,
	movements *repository.MovementRepository,
	log *logger.Logger,
) *Ledger {
	return &Ledger{
		records:   records,
		rules:     rules,
		movements: movements,
		logger:    log.WithComponent("inventory-ledger"),
	}
}

// Adjust applies a signed delta to quantity-on-hand. Fails with
// InsufficientInventory when the delta would drive on-hand negative or below
// the committed (reserved + allocated) quantity; state is left unchanged.
// Returns the new on-hand quantity.
func (l *Ledger) Adjust(ctx context.Context, productID, locationID string, delta int, reason string, actorID *string) (int, error) {
	if delta == 0 {
		return 0, errors.Validation(map[string]string{"delta": "must not be zero"})
	}

	rec, err := l.records.GetForUpdate(ctx, productID, locationID)
	if err != nil {
		return 0, err
	}

	if rec == nil {
		if delta < 0 {
			return 0, errors.InsufficientInventory(productID, locationID, -delta, 0)
		}
		rec = &repository.InventoryRecord{ProductID: productID, LocationID: locationID, OnHand: delta}
		if err := l.records.Insert(ctx, rec); err != nil {
			return 0, err
		}
		return l.finishMutation(ctx, rec, delta, reason, nil, actorID)
	}

	newOnHand := rec.OnHand + delta
	if newOnHand < 0 {
		return 0, errors.InsufficientInventory(productID, locationID, -delta, rec.OnHand)
	}
	if newOnHand < rec.Reserved+rec.Allocated {
		return 0, errors.InsufficientInventory(productID, locationID, -delta, rec.OnHand-rec.Reserved-rec.Allocated)
	}

	rec.OnHand = newOnHand
	if err := l.records.UpdateQuantities(ctx, rec); err != nil {
		return 0, err
	}

	return l.finishMutation(ctx, rec, delta, reason, nil, actorID)
}

// Transfer moves quantity between two locations as a single all-or-nothing
// step: two adjustments inside the caller's transaction. Rows are locked in
// deterministic order so two concurrent transfers over the same pair cannot
// deadlock.
func (l *Ledger) Transfer(ctx context.Context, productID, from, to string, quantity int, reason string, actorID *string) error {
	if quantity <= 0 {
		return errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}
	if from == to {
		return errors.Validation(map[string]string{"to_location_id": "must differ from the source location"})
	}

	locked := make(map[string]*repository.InventoryRecord, 2)
	order := []string{from, to}
	sort.Strings(order)
	for _, loc := range order {
		rec, err := l.records.GetForUpdate(ctx, productID, loc)
		if err != nil {
			return err
		}
		locked[loc] = rec
	}

	src := locked[from]
	if src == nil || src.OnHand < quantity {
		available := 0
		if src != nil {
			available = src.OnHand
		}
		return errors.InsufficientInventory(productID, from, quantity, available)
	}
	if src.OnHand-quantity < src.Reserved+src.Allocated {
		return errors.InsufficientInventory(productID, from, quantity, src.OnHand-src.Reserved-src.Allocated)
	}

	src.OnHand -= quantity
	if err := l.records.UpdateQuantities(ctx, src); err != nil {
		return err
	}
	if _, err := l.finishMutation(ctx, src, -quantity, reason, &to, actorID); err != nil {
		return err
	}

	dst := locked[to]
	if dst == nil {
		dst = &repository.InventoryRecord{ProductID: productID, LocationID: to, OnHand: quantity}
		if err := l.records.Insert(ctx, dst); err != nil {
			return err
		}
	} else {
		dst.OnHand += quantity
		if err := l.records.UpdateQuantities(ctx, dst); err != nil {
			return err
		}
	}
	if _, err := l.finishMutation(ctx, dst, quantity, reason, &from, actorID); err != nil {
		return err
	}

	return nil
}

// Reserve earmarks quantity for a pick. Fails when the uncommitted quantity
// is short.
func (l *Ledger) Reserve(ctx context.Context, productID, locationID string, quantity int) error {
	rec, err := l.records.GetForUpdate(ctx, productID, locationID)
	if err != nil {
		return err
	}
	if rec == nil || rec.Available() < quantity {
		available := 0
		if rec != nil {
			available = rec.Available()
		}
		return errors.InsufficientInventory(productID, locationID, quantity, available)
	}

	rec.Reserved += quantity
	return l.records.UpdateQuantities(ctx, rec)
}

// ReleaseReservation returns previously reserved quantity to the free pool.
func (l *Ledger) ReleaseReservation(ctx context.Context, productID, locationID string, quantity int) error {
	rec, err := l.records.GetForUpdate(ctx, productID, locationID)
	if err != nil {
		return err
	}
	if rec == nil || rec.Reserved < quantity {
		return errors.Internal("reservation release exceeds reserved quantity")
	}

	rec.Reserved -= quantity
	return l.records.UpdateQuantities(ctx, rec)
}

// ConsumeReservation converts reserved quantity into an on-hand decrement
// when a pick completes. Writes a movement with the pick reference.
func (l *Ledger) ConsumeReservation(ctx context.Context, productID, locationID string, quantity int, reference string, actorID *string) error {
	rec, err := l.records.GetForUpdate(ctx, productID, locationID)
	if err != nil {
		return err
	}
	if rec == nil || rec.Reserved < quantity || rec.OnHand < quantity {
		return errors.Internal("reservation consumption exceeds reserved quantity")
	}

	rec.Reserved -= quantity
	rec.OnHand -= quantity
	if err := l.records.UpdateQuantities(ctx, rec); err != nil {
		return err
	}

	_, err = l.finishMutation(ctx, rec, -quantity, "pick", &reference, actorID)
	return err
}

// AvailableByProduct returns the product's records ordered by pick sequence.
func (l *Ledger) AvailableByProduct(ctx context.Context, productID string) ([]*repository.InventoryRecord, error) {
	return l.records.ListByProduct(ctx, productID)
}

// finishMutation appends the movement log entry and evaluates threshold
// rules for the mutated record, raising threshold.alert events inside the
// same transaction so they are delivered exactly when the mutation commits.
func (l *Ledger) finishMutation(ctx context.Context, rec *repository.InventoryRecord, delta int, reason string, reference, actorID *string) (int, error) {
	reviewStatus := reviewStatusFor(delta)
	movement := &repository.Movement{
		ProductID:       rec.ProductID,
		LocationID:      rec.LocationID,
		Delta:           delta,
		ResultingOnHand: rec.OnHand,
		Reason:          reason,
		Reference:       reference,
		ActorID:         actorID,
		ReviewStatus:    reviewStatus,
	}
	if err := l.movements.Record(ctx, movement); err != nil {
		return 0, err
	}

	if err := events.Raise(ctx, events.EventInventoryAdjusted, events.InventoryAdjustedPayload{
		ProductID:   rec.ProductID,
		LocationID:  rec.LocationID,
		Delta:       delta,
		NewQuantity: rec.OnHand,
		Reason:      reason,
	}); err != nil {
		return 0, err
	}

	if reviewStatus != nil {
		requestor := "system"
		if actorID != nil {
			requestor = *actorID
		}
		if err := events.Raise(ctx, events.EventApprovalRequested, events.ApprovalRequestedPayload{
			ApprovalID:  movement.ID,
			RequestorID: requestor,
			Subject:     "inventory.adjustment",
			Reference:   rec.ProductID + "/" + rec.LocationID,
		}); err != nil {
			return 0, err
		}
	}

	if err := l.evaluateThresholds(ctx, rec); err != nil {
		return 0, err
	}

	return rec.OnHand, nil
}

// adjustments at or beyond this magnitude are flagged for supervisor review
const reviewDeltaMagnitude = 1000

func reviewStatusFor(delta int) *string {
	if delta >= reviewDeltaMagnitude || delta <= -reviewDeltaMagnitude {
		s := repository.ReviewPending
		return &s
	}
	return nil
}

func (l *Ledger) evaluateThresholds(ctx context.Context, rec *repository.InventoryRecord) error {
	rules, err := l.rules.ListMatching(ctx, rec.ProductID, rec.LocationID)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		quantity := rec.OnHand
		if rule.Metric == repository.MetricAvailable {
			quantity = rec.Available()
		}

		alert, fired := EvaluateThreshold(quantity, rule)
		if !fired {
			continue
		}

		if err := events.Raise(ctx, events.EventThresholdAlert, events.ThresholdAlertPayload{
			RuleID:     alert.RuleID,
			ProductID:  rec.ProductID,
			LocationID: rec.LocationID,
			Metric:     alert.Metric,
			Quantity:   alert.Quantity,
			Threshold:  alert.Threshold,
			Severity:   alert.Severity,
		}); err != nil {
			return err
		}
	}

	return nil
}
