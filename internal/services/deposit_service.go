package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sendflow/internal/apperrors"
	"sendflow/internal/events"
	"sendflow/internal/fees"
	"sendflow/internal/models"
	"sendflow/internal/store"
)

type DepositService struct {
	Deps
	calc *fees.Calculator
	now  func() time.Time
}

func NewDepositService(deps Deps, calc *fees.Calculator) *DepositService {
	return &DepositService{
		Deps: deps,
		calc: calc,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ProcessDeposit moves amount from the agent's float to a client in the same
// country.
func (s *DepositService) ProcessDeposit(ctx context.Context, agent models.Session, recipientID int, amount decimal.Decimal) (recharge *models.Recharge, err error) {
	defer func() { observe("deposit", err) }()

	if !agent.IsAgent() {
		return nil, apperrors.ErrNotAgent
	}
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}

	recipient, err := s.Store.GetProfile(ctx, recipientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}
	if recipient.ID == agent.UserID {
		return nil, apperrors.ErrSelfTransfer
	}
	if !strings.EqualFold(recipient.Country, agent.Country) {
		return nil, apperrors.ErrCountryMismatch
	}

	split, err := s.calc.Deposit(amount)
	if err != nil {
		return nil, apperrors.ErrInvalidAmount
	}
	if err := s.requireFunds(ctx, agent.UserID, amount); err != nil {
		return nil, err
	}

	recharge = &models.Recharge{
		ID:              uuid.NewString(),
		AgentID:         agent.UserID,
		RecipientID:     recipient.ID,
		Amount:          amount,
		AgentCommission: split.AgentCommission,
		Status:          models.RechargeCompleted,
		CreatedAt:       s.now(),
	}

	saga := s.Sagas.Start("deposit", recharge.ID)
	err = func() error {
		if _, err := saga.Apply(ctx, agent.UserID, amount.Neg()); err != nil {
			return fmt.Errorf("failed to debit agent: %w", ledgerError(err))
		}
		if _, err := saga.Apply(ctx, recipient.ID, amount); err != nil {
			return fmt.Errorf("failed to credit recipient: %w", err)
		}
		// The commission is paid out of the platform account.
		if split.AgentCommission.IsPositive() {
			if _, err := saga.Apply(ctx, s.PlatformAccountID, split.PlatformCommission); err != nil {
				return fmt.Errorf("failed to fund agent commission: %w", err)
			}
			if _, err := saga.Apply(ctx, agent.UserID, split.AgentCommission); err != nil {
				return fmt.Errorf("failed to credit agent commission: %w", err)
			}
		}
		if err := s.Store.CreateRecharge(ctx, recharge); err != nil {
			return fmt.Errorf("failed to record recharge: %w", err)
		}
		return nil
	}()
	if err != nil {
		s.Logger.Error().Err(err).Int("agent_id", agent.UserID).Int("recipient_id", recipient.ID).Msg("Error processing deposit")
		if aerr := saga.Abort(ctx); aerr != nil {
			s.Logger.Error().Err(aerr).Str("recharge_id", recharge.ID).Msg("Deposit compensation incomplete")
		}
		return nil, err
	}
	saga.Commit(ctx)

	s.Logger.Info().
		Str("recharge_id", recharge.ID).
		Int("agent_id", agent.UserID).
		Int("recipient_id", recipient.ID).
		Str("amount", amount.String()).
		Msg("Deposit completed")
	s.publish(ctx, events.New(events.DepositCompleted, recharge, agent.UserID, recipient.ID))
	return recharge, nil
}

func (s *DepositService) ListRecharges(ctx context.Context, agent models.Session, limit, offset int) ([]*models.Recharge, error) {
	if !agent.IsAgent() {
		return nil, apperrors.ErrNotAgent
	}
	recharges, err := s.Store.ListRechargesByAgent(ctx, agent.UserID, limit, offset)
	if err != nil {
		s.Logger.Error().Err(err).Int("agent_id", agent.UserID).Msg("Error fetching recharges")
		return nil, fmt.Errorf("failed to list recharges: %w", err)
	}
	return recharges, nil
}
