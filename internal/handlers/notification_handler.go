package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// Subscriber yields the realtime event stream of one user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID int) (<-chan []byte, error)
}

type NotificationHandler struct {
	subscriber Subscriber
	logger     zerolog.Logger
}

func NewNotificationHandler(subscriber Subscriber, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Stream relays the caller's ledger events as server-sent events.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	if h.subscriber == nil {
		respondWithError(w, http.StatusServiceUnavailable, "notifications_disabled", "Realtime notifications are not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming is not supported")
		return
	}

	stream, err := h.subscriber.Subscribe(r.Context(), session.UserID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to subscribe to notifications")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for payload := range stream {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			h.logger.Debug().Err(err).Int("user_id", session.UserID).Msg("Notification stream closed")
			return
		}
		flusher.Flush()
	}
}
