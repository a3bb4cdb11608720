package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/dispatch/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// DispatchHandler handles shipment and load plan endpoints
type DispatchHandler struct {
	dispatcher *service.Dispatcher
	logger     *logger.Logger
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatcher *service.Dispatcher, log *logger.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
		logger:     log,
	}
}

type createShipmentRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	service.CreateShipmentRequest
}

// CreateShipment creates a pending shipment
func (h *DispatchHandler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req.CreateShipmentRequest); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.dispatcher.CreateShipment(r.Context(), req.IdempotencyKey, req.CreateShipmentRequest)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusCreated, result.Value, result.WasDuplicate)
}

type createPlanRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	service.CreatePlanRequest
}

// CreatePlan creates a load plan and attaches shipments
func (h *DispatchHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req.CreatePlanRequest); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.dispatcher.CreatePlan(r.Context(), req.IdempotencyKey, req.CreatePlanRequest)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusCreated, result.Value, result.WasDuplicate)
}

type optimizeRequest struct {
	IdempotencyKey  string `json:"idempotency_key"`
	ForceReoptimize bool   `json:"force_reoptimize"`
}

// Optimize sequences the plan's route
func (h *DispatchHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	svcReq := service.OptimizeRequest{
		LoadPlanID:      chi.URLParam(r, "id"),
		ForceReoptimize: req.ForceReoptimize,
	}
	if err := httputil.Validate(svcReq); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.dispatcher.Optimize(r.Context(), req.IdempotencyKey, svcReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

type loadRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// Load marks the plan loaded and its shipments ready
func (h *DispatchHandler) Load(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	svcReq := service.LoadRequest{LoadPlanID: chi.URLParam(r, "id")}
	if err := httputil.Validate(svcReq); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.dispatcher.Load(r.Context(), req.IdempotencyKey, svcReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

type dispatchRequest struct {
	IdempotencyKey string  `json:"idempotency_key"`
	DriverID       *string `json:"driver_id"`
	FuelLevel      float64 `json:"fuel_level"`
	OdometerKm     float64 `json:"odometer_km"`
}

// Dispatch sends the plan out, shipping every member shipment
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	svcReq := service.DispatchRequest{
		LoadPlanID: chi.URLParam(r, "id"),
		DriverID:   req.DriverID,
		FuelLevel:  req.FuelLevel,
		OdometerKm: req.OdometerKm,
	}
	if err := httputil.Validate(svcReq); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), req.IdempotencyKey, svcReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

type planResponse struct {
	Plan      any `json:"plan"`
	Shipments any `json:"shipments"`
}

// GetPlan returns a load plan with its shipments
func (h *DispatchHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, shipments, err := h.dispatcher.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, planResponse{Plan: plan, Shipments: shipments})
}

// GetShipment returns one shipment
func (h *DispatchHandler) GetShipment(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.dispatcher.GetShipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, shipment)
}
