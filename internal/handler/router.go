package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/pkg/response"
)

// NewRouter wires every route of the HTTP API.
func NewRouter(tontines *TontineHandler, notifications *NotificationHandler, health *HealthHandler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(response.LoggingMiddleware(logger))
	router.Use(response.CORSMiddleware)

	router.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", health.Ready).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Tontine lifecycle
	api.HandleFunc("/tontines", tontines.CreateTontine).Methods(http.MethodPost)
	api.HandleFunc("/tontines", tontines.ListTontines).Methods(http.MethodGet)
	api.HandleFunc("/tontines/join", tontines.JoinByInviteCode).Methods(http.MethodPost)
	api.HandleFunc("/tontines/{id}", tontines.GetTontine).Methods(http.MethodGet)
	api.HandleFunc("/tontines/{id}", tontines.EditTontine).Methods(http.MethodPatch)
	api.HandleFunc("/tontines/{id}", tontines.DeleteTontine).Methods(http.MethodDelete)
	api.HandleFunc("/tontines/{id}/start", tontines.StartTontine).Methods(http.MethodPost)
	api.HandleFunc("/tontines/{id}/suspend", tontines.SuspendTontine).Methods(http.MethodPost)
	api.HandleFunc("/tontines/{id}/resume", tontines.ResumeTontine).Methods(http.MethodPost)
	api.HandleFunc("/tontines/{id}/advance", tontines.AdvanceCycle).Methods(http.MethodPost)

	// Participants
	api.HandleFunc("/tontines/{id}/participants", tontines.JoinTontine).Methods(http.MethodPost)
	api.HandleFunc("/tontines/{id}/participants/order", tontines.ReorderParticipants).Methods(http.MethodPut)
	api.HandleFunc("/tontines/{id}/participants/{pid}", tontines.RemoveParticipant).Methods(http.MethodDelete)

	// Payments
	api.HandleFunc("/tontines/{id}/payments", tontines.CycleStatement).Methods(http.MethodGet)
	api.HandleFunc("/tontines/{id}/participants/{pid}/payments", tontines.MarkPaid).Methods(http.MethodPost)
	api.HandleFunc("/tontines/{id}/participants/{pid}/payments", tontines.PaymentHistory).Methods(http.MethodGet)
	api.HandleFunc("/tontines/{id}/participants/{pid}/payments/validate", tontines.ValidatePayment).Methods(http.MethodPost)
	api.HandleFunc("/tontines/{id}/participants/{pid}/payments/reject", tontines.RejectPayment).Methods(http.MethodPost)

	// Notifications
	api.HandleFunc("/users/{userId}/notifications", notifications.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/notifications/read", notifications.MarkAllRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/read", notifications.MarkRead).Methods(http.MethodPost)

	return router
}
