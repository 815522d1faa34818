package api

import (
	"context"
	"net/http"

	"barter/internal/models"
)

type NotificationService interface {
	List(ctx context.Context, recipientID string) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, recipientID string, ids []string) error
	MarkAllAsRead(ctx context.Context, recipientID string) error
}

type NotificationHandler struct {
	notifications NotificationService
}

func NewNotificationHandler(notifications NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type markReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.notifications.List(r.Context(), GetProfileID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.notifications.MarkAsRead(r.Context(), GetProfileID(r), req.IDs); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkAllAsRead(r.Context(), GetProfileID(r)); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
