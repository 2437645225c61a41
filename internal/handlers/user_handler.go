package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"sendflow/internal/models"
	"sendflow/internal/services"
)

type UserHandler struct {
	userService *services.UserService
	logger      zerolog.Logger
}

func NewUserHandler(userService *services.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to fetch profile")
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// Search backs recipient lookup: GET /users/search?q=
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	recipients, err := h.userService.FindRecipient(r.Context(), session, r.URL.Query().Get("q"))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Recipient search failed")
		return
	}
	if recipients == nil {
		recipients = []models.Recipient{}
	}
	respondWithJSON(w, http.StatusOK, recipients)
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	userID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_user_id", "Invalid user ID")
		return
	}

	var req models.UpdateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		respondWithError(w, http.StatusBadRequest, "invalid_role", "Unknown role")
		return
	}

	if err := h.userService.UpdateUserRole(r.Context(), session, userID, req.Role); err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to update role")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"role":    req.Role,
	})
}
