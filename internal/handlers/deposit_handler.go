package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"sendflow/internal/models"
	"sendflow/internal/services"
)

type DepositHandler struct {
	depositService *services.DepositService
	logger         zerolog.Logger
}

func NewDepositHandler(depositService *services.DepositService, logger zerolog.Logger) *DepositHandler {
	return &DepositHandler{
		depositService: depositService,
		logger:         logger,
	}
}

func (h *DepositHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req models.DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	recharge, err := h.depositService.ProcessDeposit(r.Context(), session, req.RecipientID, req.Amount)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Deposit failed")
		return
	}
	respondWithJSON(w, http.StatusCreated, recharge)
}

func (h *DepositHandler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	recharges, err := h.depositService.ListRecharges(r.Context(), session, limit, offset)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch deposits")
		return
	}
	if recharges == nil {
		recharges = []*models.Recharge{}
	}
	respondWithJSON(w, http.StatusOK, recharges)
}
