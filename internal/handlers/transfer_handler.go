package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"sendflow/internal/models"
	"sendflow/internal/services"
)

type TransferHandler struct {
	transferService *services.TransferService
	logger          zerolog.Logger
}

func NewTransferHandler(transferService *services.TransferService, logger zerolog.Logger) *TransferHandler {
	return &TransferHandler{
		transferService: transferService,
		logger:          logger,
	}
}

func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.transferService.ProcessTransfer(r.Context(), session, req.Recipient, req.Amount)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Transfer failed")
		return
	}

	status := http.StatusCreated
	if result.PendingTransfer != nil {
		status = http.StatusAccepted
	}
	respondWithJSON(w, status, result)
}

func (h *TransferHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	transfers, err := h.transferService.ListTransfers(r.Context(), session, limit, offset)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch transfers")
		return
	}
	if transfers == nil {
		transfers = []*models.Transfer{}
	}
	respondWithJSON(w, http.StatusOK, transfers)
}

func (h *TransferHandler) Claim(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.ClaimRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pending, err := h.transferService.ClaimPendingTransfer(r.Context(), session, req.ClaimCode)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Claim failed")
		return
	}
	respondWithJSON(w, http.StatusOK, pending)
}

func (h *TransferHandler) CancelPending(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	pending, err := h.transferService.CancelPendingTransfer(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Cancel pending transfer failed")
		return
	}
	respondWithJSON(w, http.StatusOK, pending)
}
