package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"sendflow/internal/models"
	"sendflow/internal/services"
)

type WithdrawalRequestHandler struct {
	requestService *services.WithdrawalRequestService
	logger         zerolog.Logger
}

func NewWithdrawalRequestHandler(requestService *services.WithdrawalRequestService, logger zerolog.Logger) *WithdrawalRequestHandler {
	return &WithdrawalRequestHandler{
		requestService: requestService,
		logger:         logger,
	}
}

func (h *WithdrawalRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.AgentWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	request, err := h.requestService.CreateRequest(r.Context(), session, req.UserID, req.Amount, req.Phone)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Withdrawal request creation failed")
		return
	}
	respondWithJSON(w, http.StatusCreated, request)
}

func (h *WithdrawalRequestHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	requests, err := h.requestService.ListPendingForUser(r.Context(), session)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch withdrawal requests")
		return
	}
	if requests == nil {
		requests = []*models.WithdrawalRequest{}
	}
	respondWithJSON(w, http.StatusOK, requests)
}

func (h *WithdrawalRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var confirmation models.Confirmation
	if !decodeJSON(w, r, &confirmation) {
		return
	}

	request, err := h.requestService.ApproveRequest(r.Context(), session, mux.Vars(r)["id"], confirmation)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Withdrawal request approval failed")
		return
	}
	respondWithJSON(w, http.StatusOK, request)
}

func (h *WithdrawalRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	request, err := h.requestService.RejectRequest(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Withdrawal request rejection failed")
		return
	}
	respondWithJSON(w, http.StatusOK, request)
}
