package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/internal/picking/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// PickHandler handles pick endpoints
type PickHandler struct {
	orchestrator *service.Orchestrator
	logger       *logger.Logger
}

// NewPickHandler creates a new pick handler
func NewPickHandler(orchestrator *service.Orchestrator, log *logger.Logger) *PickHandler {
	return &PickHandler{
		orchestrator: orchestrator,
		logger:       log,
	}
}

type createRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	service.CreateRequest
}

// Create builds a new pick in pending state
func (h *PickHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req.CreateRequest); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.orchestrator.Create(r.Context(), req.IdempotencyKey, req.CreateRequest)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusCreated, result.Value, result.WasDuplicate)
}

type assignRequest struct {
	IdempotencyKey string   `json:"idempotency_key"`
	Workers        []string `json:"workers"`
}

// Assign reserves inventory and hands the pick to workers
func (h *PickHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	svcReq := service.AssignRequest{
		PickID:  chi.URLParam(r, "id"),
		Workers: req.Workers,
	}
	if err := httputil.Validate(svcReq); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.orchestrator.Assign(r.Context(), req.IdempotencyKey, svcReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

type transitionRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	ActorID        string `json:"actor_id"`
}

// Start moves an assigned pick to in_progress
func (h *PickHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orchestrator.Start)
}

// Complete finishes an in-progress pick, consuming its reservations
func (h *PickHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orchestrator.Complete)
}

func (h *PickHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, key string, req service.TransitionRequest) (operation.Result, error)) {
	var req transitionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = httputil.GetActorID(r.Context())
	}

	svcReq := service.TransitionRequest{
		PickID:  chi.URLParam(r, "id"),
		ActorID: req.ActorID,
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

type markItemRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	ActorID        string `json:"actor_id"`
}

// MarkItemPicked flags one member item as picked
func (h *PickHandler) MarkItemPicked(w http.ResponseWriter, r *http.Request) {
	var req markItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = httputil.GetActorID(r.Context())
	}

	svcReq := service.MarkItemRequest{
		PickID:  chi.URLParam(r, "id"),
		ItemID:  chi.URLParam(r, "itemID"),
		ActorID: req.ActorID,
	}
	if err := httputil.Validate(svcReq); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.orchestrator.MarkItemPicked(r.Context(), req.IdempotencyKey, svcReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

type optimizeRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// Optimize resequences a cluster pick along the walk path
func (h *PickHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	svcReq := service.OptimizeRequest{PickID: chi.URLParam(r, "id")}
	if err := httputil.Validate(svcReq); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.orchestrator.Optimize(r.Context(), req.IdempotencyKey, svcReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

// Get returns a pick with its items
func (h *PickHandler) Get(w http.ResponseWriter, r *http.Request) {
	pick, err := h.orchestrator.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pick)
}

// List returns a warehouse's picks filtered by status
func (h *PickHandler) List(w http.ResponseWriter, r *http.Request) {
	warehouseID := r.URL.Query().Get("warehouse_id")
	status := r.URL.Query().Get("status")
	if warehouseID == "" || status == "" {
		httputil.Error(w, errors.Validation(map[string]string{
			"warehouse_id": "required",
			"status":       "required",
		}))
		return
	}

	picks, err := h.orchestrator.ListByStatus(r.Context(), warehouseID, status)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, picks)
}
