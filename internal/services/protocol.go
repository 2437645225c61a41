package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sendflow/internal/apperrors"
	"sendflow/internal/events"
	"sendflow/internal/store"
)

// Deps bundles the collaborators shared by the protocol services.
type Deps struct {
	Store             store.Store
	Sagas             *SagaRunner
	Publisher         events.Publisher
	PlatformAccountID int
	Logger            zerolog.Logger
}

func (d Deps) publish(ctx context.Context, event events.Event) {
	if d.Publisher == nil {
		return
	}
	if err := d.Publisher.Publish(ctx, event); err != nil {
		d.Logger.Warn().Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("Failed to publish event")
	}
}

// requireFunds re-reads the account balance and fails when it is below amount.
func (d Deps) requireFunds(ctx context.Context, accountID int, amount decimal.Decimal) error {
	balance, err := d.Store.GetBalance(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check balance: %w", err)
	}
	if balance.Amount.LessThan(amount) {
		return apperrors.ErrInsufficientBalance
	}
	return nil
}

// ledgerError maps Balance Primitive failures onto protocol errors.
func ledgerError(err error) error {
	if errors.Is(err, store.ErrInsufficientFunds) {
		return apperrors.ErrInsufficientBalance
	}
	return err
}
