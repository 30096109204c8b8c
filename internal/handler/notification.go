package handler

import (
	"log/slog"
	"net/http"

	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/service"
)

// NotificationHandler exposes the caller's notification feed.
//
// There is deliberately no create endpoint: notifications are appended by
// other parts of the system (invite redemptions, missed calls), never by
// clients.
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// HandleList returns the caller's notifications, newest first.
//
// HTTP: GET /api/notifications
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	items, err := h.notifications.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// HandleMarkRead flips one notification to read.
//
// HTTP: POST /api/notifications/{id}/read
//
// One-way and idempotent: re-marking a read notification succeeds without
// changing anything, and there is no way back to unread. Marking someone
// else's notification is 403.
func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	n, err := h.notifications.MarkRead(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, n)
}
