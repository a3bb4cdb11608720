package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// InventoryHandler handles inventory endpoints
type InventoryHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(svc *service.InventoryService, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  log,
	}
}

type adjustRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	service.AdjustRequest
}

// Adjust applies a quantity delta at one location
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = httputil.GetActorID(r.Context())
	}
	if err := httputil.Validate(req.AdjustRequest); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Adjust(r.Context(), req.IdempotencyKey, req.AdjustRequest)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

type transferRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	service.TransferRequest
}

// Transfer moves quantity between two locations
func (h *InventoryHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = httputil.GetActorID(r.Context())
	}
	if err := httputil.Validate(req.TransferRequest); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Transfer(r.Context(), req.IdempotencyKey, req.TransferRequest)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

type reviewRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Decision       string `json:"decision"`
	ReviewerID     string `json:"reviewer_id"`
}

// ReviewMovement records a supervisor decision on a flagged adjustment
func (h *InventoryHandler) ReviewMovement(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.ReviewerID == "" {
		req.ReviewerID = httputil.GetActorID(r.Context())
	}

	svcReq := service.ReviewRequest{
		MovementID: chi.URLParam(r, "id"),
		Decision:   req.Decision,
		ReviewerID: req.ReviewerID,
	}
	if err := httputil.Validate(svcReq); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.ReviewMovement(r.Context(), req.IdempotencyKey, svcReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.OperationResult(w, http.StatusOK, result.Value, result.WasDuplicate)
}

// GetRecord returns the quantity state for one (product, location) pair
func (h *InventoryHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetRecord(r.Context(), chi.URLParam(r, "productID"), chi.URLParam(r, "locationID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rec)
}

// ListRecords lists a product's records across locations
func (h *InventoryHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListRecords(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, recs)
}

// ListMovements lists recent movements for a product
func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	movements, err := h.service.ListMovements(r.Context(), chi.URLParam(r, "productID"), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, movements)
}
