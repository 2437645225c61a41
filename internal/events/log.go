package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the application log. Used when no broker is
// configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Ints("user_ids", event.UserIDs).
		Msg("Event published")
	return nil
}
