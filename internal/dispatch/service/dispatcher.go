package service

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/internal/dispatch/repository"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/lifecycle"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Dispatcher drives shipments and load plans through their lifecycles:
// pending -> optimized -> loaded -> dispatched for plans, with every member
// shipment shipped in the dispatch transaction.
type Dispatcher struct {
	runner    *operation.Runner
	plans     *repository.LoadPlanRepository
	shipments *repository.ShipmentRepository
	planM     *lifecycle.Machine
	shipM     *lifecycle.Machine
	logger    *logger.Logger
}

// NewDispatcher creates a load plan dispatcher
func NewDispatcher(
	runner *operation.Runner,
	plans *repository.LoadPlanRepository,
	shipments *repository.ShipmentRepository,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		runner:    runner,
		plans:     plans,
		shipments: shipments,
		planM:     lifecycle.LoadPlanMachine(),
		shipM:     lifecycle.ShipmentMachine(),
		logger:    log.WithComponent("dispatcher"),
	}
}

// CreateShipmentRequest is the payload of the shipment creation operation.
type CreateShipmentRequest struct {
	FulfillmentID *string `json:"fulfillment_id,omitempty"`
	OrderRef      string  `json:"order_ref" validate:"required"`
	WarehouseID   string  `json:"warehouse_id" validate:"required"`
	CarrierID     *string `json:"carrier_id,omitempty"`
	Address       string  `json:"address" validate:"required"`
	DestLat       float64 `json:"dest_lat" validate:"min=-90,max=90"`
	DestLon       float64 `json:"dest_lon" validate:"min=-180,max=180"`
}

// CreateShipmentResult is the stored result of the shipment creation
// operation.
type CreateShipmentResult struct {
	ShipmentID string `json:"shipment_id"`
	Status     string `json:"status"`
}

// CreateShipment creates a pending shipment.
func (d *Dispatcher) CreateShipment(ctx context.Context, idempotencyKey string, req CreateShipmentRequest) (operation.Result, error) {
	return d.runner.Execute(ctx, idempotencyKey, "shipment.create", req,
		func(ctx context.Context) (any, error) {
			s := &repository.Shipment{
				FulfillmentID: req.FulfillmentID,
				OrderRef:      req.OrderRef,
				WarehouseID:   req.WarehouseID,
				Status:        string(lifecycle.StatePending),
				CarrierID:     req.CarrierID,
				Address:       req.Address,
				DestLat:       req.DestLat,
				DestLon:       req.DestLon,
			}
			if err := d.shipments.Create(ctx, s); err != nil {
				return nil, err
			}
			return CreateShipmentResult{ShipmentID: s.ID, Status: s.Status}, nil
		})
}

// CreatePlanRequest is the payload of the load plan creation operation.
type CreatePlanRequest struct {
	WarehouseID string   `json:"warehouse_id" validate:"required"`
	VehicleID   string   `json:"vehicle_id" validate:"required"`
	DriverID    *string  `json:"driver_id,omitempty"`
	OriginLat   float64  `json:"origin_lat" validate:"min=-90,max=90"`
	OriginLon   float64  `json:"origin_lon" validate:"min=-180,max=180"`
	ShipmentIDs []string `json:"shipment_ids" validate:"required,min=1"`
}

// CreatePlanResult is the stored result of the load plan creation operation.
type CreatePlanResult struct {
	LoadPlanID    string `json:"load_plan_id"`
	Status        string `json:"status"`
	ShipmentCount int    `json:"shipment_count"`
}

// CreatePlan creates a pending load plan and attaches the named shipments.
// A shipment already on another plan fails the whole creation.
func (d *Dispatcher) CreatePlan(ctx context.Context, idempotencyKey string, req CreatePlanRequest) (operation.Result, error) {
	return d.runner.Execute(ctx, idempotencyKey, "loadplan.create", req,
		func(ctx context.Context) (any, error) {
			p := &repository.LoadPlan{
				WarehouseID: req.WarehouseID,
				VehicleID:   req.VehicleID,
				DriverID:    req.DriverID,
				Status:      string(lifecycle.StatePending),
				Strategy:    repository.StrategyDistance,
				OriginLat:   req.OriginLat,
				OriginLon:   req.OriginLon,
			}
			if err := d.plans.Create(ctx, p); err != nil {
				return nil, err
			}

			for _, shipmentID := range req.ShipmentIDs {
				if err := d.shipments.AttachToPlan(ctx, shipmentID, p.ID); err != nil {
					return nil, err
				}
			}

			return CreatePlanResult{
				LoadPlanID:    p.ID,
				Status:        p.Status,
				ShipmentCount: len(req.ShipmentIDs),
			}, nil
		})
}

// OptimizeRequest is the payload of the route optimization operation.
type OptimizeRequest struct {
	LoadPlanID      string `json:"load_plan_id" validate:"required"`
	ForceReoptimize bool   `json:"force_reoptimize,omitempty"`
}

// OptimizeResult is the stored result of the route optimization operation.
type OptimizeResult struct {
	LoadPlanID      string  `json:"load_plan_id"`
	Status          string  `json:"status"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	Reoptimized     bool    `json:"reoptimized"`
}

// Optimize sequences the plan's shipments by nearest-neighbour from the
// warehouse origin. When the shipment set is unchanged since the last run the
// stored route is kept unless force_reoptimize is set.
func (d *Dispatcher) Optimize(ctx context.Context, idempotencyKey string, req OptimizeRequest) (operation.Result, error) {
	return d.runner.Execute(ctx, idempotencyKey, "loadplan.optimize", req,
		func(ctx context.Context) (any, error) {
			p, err := d.plans.GetForUpdate(ctx, req.LoadPlanID)
			if err != nil {
				return nil, err
			}

			shipments, err := d.shipments.ListByPlan(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			if len(shipments) == 0 {
				return nil, errors.Validation(map[string]string{"load_plan_id": "plan has no shipments"})
			}

			ids := make([]string, len(shipments))
			for i, s := range shipments {
				ids[i] = s.ID
			}
			fingerprint := RouteFingerprint(ids)

			if lifecycle.State(p.Status) == lifecycle.StateOptimized &&
				p.RouteFingerprint != nil && *p.RouteFingerprint == fingerprint &&
				!req.ForceReoptimize {
				distance := 0.0
				if p.TotalDistanceKm != nil {
					distance = *p.TotalDistanceKm
				}
				return OptimizeResult{
					LoadPlanID:      p.ID,
					Status:          p.Status,
					TotalDistanceKm: distance,
					Reoptimized:     false,
				}, nil
			}

			if lifecycle.State(p.Status) == lifecycle.StatePending {
				next, err := d.planM.Transition(p.ID, lifecycle.State(p.Status), lifecycle.StateOptimized)
				if err != nil {
					return nil, err
				}
				p.Status = string(next)
			} else if lifecycle.State(p.Status) != lifecycle.StateOptimized {
				return nil, errors.StateTransition("load_plan", p.ID, p.Status, "optimize")
			}

			stops := make([]Stop, len(shipments))
			for i, s := range shipments {
				stops[i] = Stop{ShipmentID: s.ID, Lat: s.DestLat, Lon: s.DestLon}
			}
			ordered, distance := Route(p.OriginLat, p.OriginLon, stops)
			for i, stop := range ordered {
				if err := d.shipments.SetStopSequence(ctx, stop.ShipmentID, i+1); err != nil {
					return nil, err
				}
			}

			p.RouteFingerprint = &fingerprint
			p.TotalDistanceKm = &distance
			if err := d.plans.Update(ctx, p); err != nil {
				return nil, err
			}

			return OptimizeResult{
				LoadPlanID:      p.ID,
				Status:          p.Status,
				TotalDistanceKm: distance,
				Reoptimized:     true,
			}, nil
		})
}

// TransitionResult is the stored result of the load and dispatch operations.
type TransitionResult struct {
	LoadPlanID string `json:"load_plan_id"`
	Status     string `json:"status"`
}

// LoadRequest is the payload of the load operation.
type LoadRequest struct {
	LoadPlanID string `json:"load_plan_id" validate:"required"`
}

// Load moves an optimized plan to loaded and marks every member shipment
// ready.
func (d *Dispatcher) Load(ctx context.Context, idempotencyKey string, req LoadRequest) (operation.Result, error) {
	return d.runner.Execute(ctx, idempotencyKey, "loadplan.load", req,
		func(ctx context.Context) (any, error) {
			p, err := d.plans.GetForUpdate(ctx, req.LoadPlanID)
			if err != nil {
				return nil, err
			}

			next, err := d.planM.Transition(p.ID, lifecycle.State(p.Status), lifecycle.StateLoaded)
			if err != nil {
				return nil, err
			}

			shipments, err := d.shipments.ListByPlan(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			for _, s := range shipments {
				nextShip, err := d.shipM.Transition(s.ID, lifecycle.State(s.Status), lifecycle.StateReady)
				if err != nil {
					return nil, err
				}
				if err := d.shipments.UpdateStatus(ctx, s.ID, string(nextShip), nil); err != nil {
					return nil, err
				}
			}

			p.Status = string(next)
			if err := d.plans.Update(ctx, p); err != nil {
				return nil, err
			}

			return TransitionResult{LoadPlanID: p.ID, Status: p.Status}, nil
		})
}

// DispatchRequest is the payload of the dispatch operation.
type DispatchRequest struct {
	LoadPlanID string  `json:"load_plan_id" validate:"required"`
	DriverID   *string `json:"driver_id,omitempty"`
	FuelLevel  float64 `json:"fuel_level" validate:"min=0,max=100"`
	OdometerKm float64 `json:"odometer_km" validate:"min=0"`
}

// Dispatch moves a loaded plan to dispatched, stamping departure time, fuel
// level and odometer, and ships every member shipment in the same
// transaction.
func (d *Dispatcher) Dispatch(ctx context.Context, idempotencyKey string, req DispatchRequest) (operation.Result, error) {
	return d.runner.Execute(ctx, idempotencyKey, "loadplan.dispatch", req,
		func(ctx context.Context) (any, error) {
			p, err := d.plans.GetForUpdate(ctx, req.LoadPlanID)
			if err != nil {
				return nil, err
			}

			next, err := d.planM.Transition(p.ID, lifecycle.State(p.Status), lifecycle.StateDispatched)
			if err != nil {
				return nil, err
			}

			now := time.Now().UTC()
			shipments, err := d.shipments.ListByPlan(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			for _, s := range shipments {
				nextShip, err := d.shipM.Transition(s.ID, lifecycle.State(s.Status), lifecycle.StateShipped)
				if err != nil {
					return nil, err
				}
				if err := d.shipments.UpdateStatus(ctx, s.ID, string(nextShip), &now); err != nil {
					return nil, err
				}

				carrierID := ""
				if s.CarrierID != nil {
					carrierID = *s.CarrierID
				}
				if err := events.Raise(ctx, events.EventShipmentShipped, events.ShipmentShippedPayload{
					ShipmentID: s.ID,
					LoadPlanID: p.ID,
					CarrierID:  carrierID,
				}); err != nil {
					return nil, err
				}
			}

			p.Status = string(next)
			if req.DriverID != nil {
				p.DriverID = req.DriverID
			}
			p.DepartedAt = &now
			p.FuelLevel = &req.FuelLevel
			p.OdometerKm = &req.OdometerKm
			if err := d.plans.Update(ctx, p); err != nil {
				return nil, err
			}

			driverID := ""
			if p.DriverID != nil {
				driverID = *p.DriverID
			}
			if err := events.Raise(ctx, events.EventLoadPlanDispatched, events.LoadPlanDispatchedPayload{
				LoadPlanID:    p.ID,
				VehicleID:     p.VehicleID,
				DriverID:      driverID,
				ShipmentCount: len(shipments),
				DepartedAt:    now,
			}); err != nil {
				return nil, err
			}

			return TransitionResult{LoadPlanID: p.ID, Status: p.Status}, nil
		})
}

// GetPlan returns a load plan with its shipments.
func (d *Dispatcher) GetPlan(ctx context.Context, id string) (*repository.LoadPlan, []*repository.Shipment, error) {
	p, err := d.plans.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	shipments, err := d.shipments.ListByPlan(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, shipments, nil
}

// GetShipment returns one shipment.
func (d *Dispatcher) GetShipment(ctx context.Context, id string) (*repository.Shipment, error) {
	return d.shipments.GetByID(ctx, id)
}
