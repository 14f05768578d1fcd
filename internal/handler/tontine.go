package handler

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/segyhp/tontine-engine/internal/domain"
	"github.com/segyhp/tontine-engine/internal/service"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
	"github.com/segyhp/tontine-engine/pkg/response"
	"github.com/segyhp/tontine-engine/pkg/utils"
)

// ActorHeader carries the id of the authenticated user. Authentication itself
// happens upstream of this service.
const ActorHeader = "X-User-ID"

// multipart bodies above this are spilled to temporary files
const maxMultipartMemory = 10 << 20

type TontineHandler struct {
	service *service.TontineService
}

func NewTontineHandler(service *service.TontineService) *TontineHandler {
	return &TontineHandler{service: service}
}

// actor returns the calling user, answering 401 when the header is missing.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		response.Unauthorized(w, ActorHeader+" header is required")
		return "", false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return false
	}
	return true
}

// CreateTontine handles POST /tontines
func (h *TontineHandler) CreateTontine(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var req domain.CreateTontineRequest
	if !decode(w, r, &req) {
		return
	}
	req.InitiatorID = actorID

	tontine, err := h.service.Create(r.Context(), &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, tontine)
}

// ListTontines handles GET /tontines
func (h *TontineHandler) ListTontines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TontineFilter{
		InitiatorID:       q.Get("initiator"),
		ParticipantUserID: q.Get("participant"),
		InviteCode:        utils.NormalizeInviteCode(q.Get("invite_code")),
		Status:            domain.TontineStatus(q.Get("status")),
	}

	tontines, err := h.service.List(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if tontines == nil {
		tontines = []*domain.Tontine{}
	}
	response.Success(w, tontines)
}

// GetTontine handles GET /tontines/{id}
func (h *TontineHandler) GetTontine(w http.ResponseWriter, r *http.Request) {
	tontine, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, tontine)
}

// EditTontine handles PATCH /tontines/{id}
func (h *TontineHandler) EditTontine(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var req domain.EditTontineRequest
	if !decode(w, r, &req) {
		return
	}

	tontine, err := h.service.Edit(r.Context(), mux.Vars(r)["id"], actorID, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, tontine)
}

// DeleteTontine handles DELETE /tontines/{id}
func (h *TontineHandler) DeleteTontine(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"], actorID); err != nil {
		response.FromError(w, err)
		return
	}
	response.NoContent(w)
}

type lifecycleOp func(ctx context.Context, id, actorID string) (*domain.Tontine, error)

func (h *TontineHandler) lifecycle(op lifecycleOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actor(w, r)
		if !ok {
			return
		}

		tontine, err := op(r.Context(), mux.Vars(r)["id"], actorID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.Success(w, tontine)
	}
}

// StartTontine handles POST /tontines/{id}/start
func (h *TontineHandler) StartTontine(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.service.Start)(w, r)
}

// SuspendTontine handles POST /tontines/{id}/suspend
func (h *TontineHandler) SuspendTontine(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.service.Suspend)(w, r)
}

// ResumeTontine handles POST /tontines/{id}/resume
func (h *TontineHandler) ResumeTontine(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.service.Resume)(w, r)
}

// AdvanceCycle handles POST /tontines/{id}/advance
func (h *TontineHandler) AdvanceCycle(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.service.AdvanceCycle)(w, r)
}

// JoinByInviteCode handles POST /tontines/join
func (h *TontineHandler) JoinByInviteCode(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var req domain.JoinByCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = actorID
	}

	tontine, err := h.service.JoinByInviteCode(r.Context(), actorID, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, tontine)
}

// JoinTontine handles POST /tontines/{id}/participants
func (h *TontineHandler) JoinTontine(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var req domain.JoinRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = actorID
	}

	tontine, err := h.service.Join(r.Context(), mux.Vars(r)["id"], actorID, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, tontine)
}

// RemoveParticipant handles DELETE /tontines/{id}/participants/{pid}
func (h *TontineHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	tontine, err := h.service.Remove(r.Context(), vars["id"], vars["pid"], actorID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, tontine)
}

// ReorderParticipants handles PUT /tontines/{id}/participants/order
func (h *TontineHandler) ReorderParticipants(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var req domain.ReorderRequest
	if !decode(w, r, &req) {
		return
	}

	tontine, err := h.service.Reorder(r.Context(), mux.Vars(r)["id"], actorID, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, tontine)
}

// MarkPaid handles POST /tontines/{id}/participants/{pid}/payments. The body
// is multipart: a "proof" file plus the transfer details as form fields.
func (h *TontineHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		response.BadRequest(w, "Expected a multipart form", err)
		return
	}
	file, header, err := r.FormFile("proof")
	if err != nil {
		response.BadRequest(w, "A proof file is required", err)
		return
	}
	defer file.Close()

	transfer, err := transferDetails(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	// multipart writers default every file part to octet-stream
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(header.Filename)); byExt != "" {
			contentType = byExt
		}
	}

	req := &domain.MarkPaidRequest{
		File: domain.ProofFile{
			Name:        header.Filename,
			ContentType: contentType,
			Size:        header.Size,
			Content:     file,
		},
		Transfer: transfer,
	}

	vars := mux.Vars(r)
	payment, err := h.service.MarkPaid(r.Context(), vars["id"], vars["pid"], actorID, req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, payment)
}

func transferDetails(r *http.Request) (domain.TransferDetails, error) {
	details := domain.TransferDetails{
		Network:         r.FormValue("network"),
		RecipientNumber: r.FormValue("recipient_number"),
		TransferNumber:  r.FormValue("transfer_number"),
		TransferTime:    r.FormValue("transfer_time"),
	}

	if raw := r.FormValue("amount"); raw != "" {
		amount, err := utils.DecimalFromString(raw)
		if err != nil {
			return details, customError.WrapValidation("amount must be a number")
		}
		details.Amount = amount
	}

	if raw := r.FormValue("transfer_date"); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			if date, err = time.Parse(time.RFC3339, raw); err != nil {
				return details, customError.WrapValidation("transfer_date must be YYYY-MM-DD or RFC 3339")
			}
		}
		details.TransferDate = date
	}

	return details, nil
}

// ValidatePayment handles POST /tontines/{id}/participants/{pid}/payments/validate
func (h *TontineHandler) ValidatePayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	payment, err := h.service.Validate(r.Context(), vars["id"], vars["pid"], actorID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, payment)
}

// RejectPayment handles POST /tontines/{id}/participants/{pid}/payments/reject
func (h *TontineHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var req domain.RejectPaymentRequest
	if !decode(w, r, &req) {
		return
	}

	vars := mux.Vars(r)
	payment, err := h.service.Reject(r.Context(), vars["id"], vars["pid"], actorID, req.Reason)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, payment)
}

// CycleStatement handles GET /tontines/{id}/payments
func (h *TontineHandler) CycleStatement(w http.ResponseWriter, r *http.Request) {
	statement, err := h.service.CycleStatement(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, statement)
}

// PaymentHistory handles GET /tontines/{id}/participants/{pid}/payments
func (h *TontineHandler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	history, err := h.service.PaymentHistory(r.Context(), vars["id"], vars["pid"])
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, history)
}
