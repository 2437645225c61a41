package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"sendflow/internal/services"
)

type BalanceHandler struct {
	balanceService *services.BalanceService
	logger         zerolog.Logger
}

func NewBalanceHandler(balanceService *services.BalanceService, logger zerolog.Logger) *BalanceHandler {
	return &BalanceHandler{
		balanceService: balanceService,
		logger:         logger,
	}
}

func (h *BalanceHandler) GetCurrentBalance(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	balance, err := h.balanceService.GetBalance(r.Context(), targetUser(r, session))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch balance")
		return
	}

	respondWithJSON(w, http.StatusOK, balance)
}

func (h *BalanceHandler) GetHistoricalBalance(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	history, err := h.balanceService.GetBalanceHistory(r.Context(), targetUser(r, session), limit, offset)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch balance history")
		return
	}

	respondWithJSON(w, http.StatusOK, history)
}

func (h *BalanceHandler) GetBalanceAtTime(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	timeStr := r.URL.Query().Get("time")
	if timeStr == "" {
		respondWithError(w, http.StatusBadRequest, "missing_parameter", "time parameter is required")
		return
	}

	targetTime, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_time", "Invalid time format. Use RFC3339 format")
		return
	}

	userID := targetUser(r, session)
	balance, err := h.balanceService.GetBalanceAtTime(r.Context(), userID, targetTime)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch balance at time")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
		"at_time": targetTime,
	})
}
