package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/segyhp/tontine-engine/internal/service"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
	"github.com/segyhp/tontine-engine/pkg/response"
)

type NotificationHandler struct {
	service *service.NotificationService
}

func NewNotificationHandler(service *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// inboxOwner returns the {userId} of the route when it is the caller's own.
func inboxOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, ok := actor(w, r)
	if !ok {
		return "", false
	}
	if userID := mux.Vars(r)["userId"]; userID != actorID {
		response.FromError(w, customError.WrapForbidden("users can only access their own notifications"))
		return "", false
	}
	return actorID, true
}

// ListNotifications handles GET /users/{userId}/notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := inboxOwner(w, r)
	if !ok {
		return
	}

	notifications, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, notifications)
}

// MarkRead handles POST /notifications/{id}/read. Only the recipient may mark
// a notification; anyone else gets a not found.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), actorID, mux.Vars(r)["id"]); err != nil {
		response.FromError(w, err)
		return
	}
	response.NoContent(w)
}

// MarkAllRead handles POST /users/{userId}/notifications/read
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := inboxOwner(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkAllRead(r.Context(), userID); err != nil {
		response.FromError(w, err)
		return
	}
	response.NoContent(w)
}
