package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"sendflow/internal/models"
	"sendflow/internal/services"
)

type WithdrawalHandler struct {
	withdrawalService *services.WithdrawalService
	logger            zerolog.Logger
}

func NewWithdrawalHandler(withdrawalService *services.WithdrawalService, logger zerolog.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawalService: withdrawalService,
		logger:            logger,
	}
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.CreateWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	withdrawal, err := h.withdrawalService.CreateWithdrawal(r.Context(), session, req.Amount, req.Phone)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Withdrawal creation failed")
		return
	}
	respondWithJSON(w, http.StatusCreated, withdrawal)
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	withdrawals, err := h.withdrawalService.ListWithdrawals(r.Context(), session)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch withdrawals")
		return
	}
	if withdrawals == nil {
		withdrawals = []*models.Withdrawal{}
	}
	respondWithJSON(w, http.StatusOK, withdrawals)
}

func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	withdrawal, err := h.withdrawalService.CancelWithdrawal(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Withdrawal cancellation failed")
		return
	}
	respondWithJSON(w, http.StatusOK, withdrawal)
}

type codeAction func(ctx context.Context, agent models.Session, code string) (*models.Withdrawal, error)

// byCode runs an agent action keyed by the customer's verification code.
func (h *WithdrawalHandler) byCode(w http.ResponseWriter, r *http.Request, action codeAction, failure string) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.VerificationCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	withdrawal, err := action(r.Context(), session, req.Code)
	if err != nil {
		respondWithServiceError(w, h.logger, err, failure)
		return
	}
	respondWithJSON(w, http.StatusOK, withdrawal)
}

func (h *WithdrawalHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.byCode(w, r, h.withdrawalService.StartProcessing, "Start processing failed")
}

func (h *WithdrawalHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.byCode(w, r, h.withdrawalService.ConfirmWithdrawal, "Withdrawal confirmation failed")
}

func (h *WithdrawalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.byCode(w, r, h.withdrawalService.RejectWithdrawal, "Withdrawal rejection failed")
}
