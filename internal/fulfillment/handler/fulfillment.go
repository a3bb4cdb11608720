package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/fulfillment/service"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// FulfillmentHandler handles fulfillment endpoints
type FulfillmentHandler struct {
	engine *service.AutomationEngine
	logger *logger.Logger
}

// NewFulfillmentHandler creates a new fulfillment handler
func NewFulfillmentHandler(engine *service.AutomationEngine, log *logger.Logger) *FulfillmentHandler {
	return &FulfillmentHandler{
		engine: engine,
		logger: log,
	}
}

type processRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	service.ProcessRequest
}

// Process runs the fulfillment automation steps for one order
func (h *FulfillmentHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req.ProcessRequest); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.engine.Process(r.Context(), req.IdempotencyKey, req.ProcessRequest)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusCreated, result.Value, result.WasDuplicate)
}

type transitionRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	ActorID        string `json:"actor_id"`
}

// Complete finishes a fully fulfilled fulfillment
func (h *FulfillmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Complete)
}

// Cancel cancels a pending or in-progress fulfillment
func (h *FulfillmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Cancel)
}

func (h *FulfillmentHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, key string, req service.TransitionRequest) (operation.Result, error)) {
	var req transitionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = httputil.GetActorID(r.Context())
	}

	svcReq := service.TransitionRequest{
		FulfillmentID: chi.URLParam(r, "id"),
		ActorID:       req.ActorID,
	}
	if err := httputil.Validate(svcReq); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := op(r.Context(), req.IdempotencyKey, svcReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

// Get returns a fulfillment with its items
func (h *FulfillmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, f)
}

// List returns a warehouse's fulfillments filtered by status
func (h *FulfillmentHandler) List(w http.ResponseWriter, r *http.Request) {
	warehouseID := r.URL.Query().Get("warehouse_id")
	status := r.URL.Query().Get("status")
	if warehouseID == "" || status == "" {
		httputil.Error(w, errors.Validation(map[string]string{
			"warehouse_id": "required",
			"status":       "required",
		}))
		return
	}

	fulfillments, err := h.engine.ListByWarehouse(r.Context(), warehouseID, status)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, fulfillments)
}
