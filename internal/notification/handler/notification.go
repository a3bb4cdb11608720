package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/notification/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// NotificationHandler handles notification endpoints
type NotificationHandler struct {
	notifications *repository.NotificationRepository
	logger        *logger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *repository.NotificationRepository, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        log,
	}
}

// List returns a recipient's notifications, newest first
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("recipient")
	if recipient == "" {
		recipient = httputil.GetActorID(r.Context())
	}
	if recipient == "" {
		httputil.Error(w, errors.Validation(map[string]string{"recipient": "required"}))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notifications, err := h.notifications.ListByRecipient(r.Context(), recipient, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, notifications)
}

// Acknowledge marks a notification read
func (h *NotificationHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Acknowledge(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
