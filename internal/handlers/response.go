package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"sendflow/internal/apperrors"
	"sendflow/internal/fees"
	"sendflow/internal/middleware"
	"sendflow/internal/models"
	"sendflow/internal/services"
	"sendflow/internal/store"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is; the first match wins.
var errorMappings = []errorMapping{
	{apperrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{fees.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{apperrors.ErrMissingRecipient, http.StatusBadRequest, "missing_recipient"},
	{apperrors.ErrMissingPhone, http.StatusBadRequest, "missing_phone"},
	{apperrors.ErrMissingCode, http.StatusBadRequest, "missing_code"},
	{apperrors.ErrMissingFields, http.StatusBadRequest, "missing_fields"},
	{apperrors.ErrConfirmationRequired, http.StatusBadRequest, "confirmation_required"},
	{apperrors.ErrSelfTransfer, http.StatusBadRequest, "self_transfer"},
	{apperrors.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{apperrors.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{services.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{apperrors.ErrNotAgent, http.StatusForbidden, "not_agent"},
	{apperrors.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperrors.ErrClaimantMismatch, http.StatusForbidden, "claimant_mismatch"},
	{apperrors.ErrCodeNotFound, http.StatusNotFound, "code_not_found"},
	{apperrors.ErrClaimCodeNotFound, http.StatusNotFound, "claim_code_not_found"},
	{apperrors.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{apperrors.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
	{apperrors.ErrWithdrawalNotFound, http.StatusNotFound, "withdrawal_not_found"},
	{apperrors.ErrTransferNotFound, http.StatusNotFound, "transfer_not_found"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperrors.ErrSelfConfirmation, http.StatusConflict, "self_confirmation"},
	{apperrors.ErrCountryMismatch, http.StatusConflict, "country_mismatch"},
	{apperrors.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{apperrors.ErrUserExists, http.StatusConflict, "user_exists"},
	{store.ErrStaleStatus, http.StatusConflict, "stale_status"},
	{apperrors.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
}

// classify returns the HTTP status, stable error code and client message for err.
func classify(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, m.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal_error", "An internal error occurred"
}

func respondWithServiceError(w http.ResponseWriter, logger zerolog.Logger, err error, msg string) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
	} else {
		logger.Debug().Err(err).Str("code", code).Msg(msg)
	}
	respondWithError(w, status, code, message)
}

func respondWithError(w http.ResponseWriter, code int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(middleware.ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

func requireSession(w http.ResponseWriter, r *http.Request) (models.Session, bool) {
	session, ok := middleware.GetSession(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
	}
	return session, ok
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, 200)
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

// targetUser lets staff inspect another account through ?user_id=.
func targetUser(r *http.Request, session models.Session) int {
	if !session.Role.IsStaff() {
		return session.UserID
	}
	if uid, err := strconv.Atoi(r.URL.Query().Get("user_id")); err == nil {
		return uid
	}
	return session.UserID
}
