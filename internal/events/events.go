// Package events fans protocol outcomes out to realtime subscribers and the
// domain event exchange.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	TransferCompleted          = "transfer.completed"
	TransferPending            = "transfer.pending"
	TransferClaimed            = "transfer.claimed"
	TransferRefunded           = "transfer.refunded"
	WithdrawalCreated          = "withdrawal.created"
	WithdrawalProcessing       = "withdrawal.processing"
	WithdrawalCompleted        = "withdrawal.completed"
	WithdrawalRejected         = "withdrawal.rejected"
	WithdrawalRequestCreated   = "withdrawal_request.created"
	WithdrawalRequestCompleted = "withdrawal_request.completed"
	WithdrawalRequestRejected  = "withdrawal_request.rejected"
	DepositCompleted           = "deposit.completed"
	CompensationFailed         = "compensation.failed"
)

// Event is a change notification. UserIDs lists the accounts whose realtime
// channel should receive it.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserIDs    []int     `json:"user_ids"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(eventType string, payload any, userIDs ...int) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserIDs:    userIDs,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
