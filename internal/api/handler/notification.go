package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/service"
)

// NotificationHandler handles in-app notifications.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List lists the caller's notifications. ?unread=true hides read ones.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	list, err := h.notifications.List(r.Context(), p.Email(), r.URL.Query().Get("unread") == "true")
	if err != nil {
		handleError(w, err)
		return
	}
	if list == nil {
		list = []*domain.Notification{}
	}

	respondJSON(w, http.StatusOK, list)
}

// MarkRead marks one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(r.Context(), p.Email(), chi.URLParam(r, "id")); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Send sends a notification to a user.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.SendNotificationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	n, err := h.notifications.Send(r.Context(), req.Email, "", req.Title, req.Message)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, n)
}
