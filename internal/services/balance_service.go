package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sendflow/internal/apperrors"
	"sendflow/internal/models"
	"sendflow/internal/store"
)

type BalanceService struct {
	ledger   store.Ledger
	profiles store.ProfileStore
	logger   zerolog.Logger
}

func NewBalanceService(ledger store.Ledger, profiles store.ProfileStore, logger zerolog.Logger) *BalanceService {
	return &BalanceService{
		ledger:   ledger,
		profiles: profiles,
		logger:   logger,
	}
}

func (s *BalanceService) GetBalance(ctx context.Context, userID int) (*models.Balance, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching balance")
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return balance, nil
}

func (s *BalanceService) GetBalanceHistory(ctx context.Context, userID, limit, offset int) ([]*models.BalanceHistory, error) {
	history, err := s.ledger.BalanceHistory(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching balance history")
		return nil, fmt.Errorf("failed to fetch balance history: %w", err)
	}
	return history, nil
}

func (s *BalanceService) CalculateBalanceFromHistory(ctx context.Context, userID int) (decimal.Decimal, error) {
	total, err := s.ledger.SumBalanceHistory(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error calculating balance from history")
		return decimal.Zero, fmt.Errorf("failed to sum balance history: %w", err)
	}
	return total, nil
}

// ReconcileBalance compares the stored balance with the sum of its history and
// reports whether they agree.
func (s *BalanceService) ReconcileBalance(ctx context.Context, userID int) (bool, error) {
	current, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	calculated, err := s.CalculateBalanceFromHistory(ctx, userID)
	if err != nil {
		return false, err
	}

	if !current.Amount.Equal(calculated) {
		balanceDiscrepancies.Inc()
		s.logger.Warn().
			Int("user_id", userID).
			Str("current_balance", current.Amount.String()).
			Str("calculated_balance", calculated.String()).
			Msg("Balance discrepancy detected")
		return false, nil
	}
	return true, nil
}

// ReconcileAll reconciles every account and returns the number of discrepancies.
func (s *BalanceService) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.profiles.ListAccountIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	var mismatches int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return mismatches, err
		}
		ok, err := s.ReconcileBalance(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Int("user_id", id).Msg("Error reconciling balance")
			continue
		}
		if !ok {
			mismatches++
		}
	}

	s.logger.Info().Int("accounts", len(ids)).Int("discrepancies", mismatches).Msg("Balance reconciliation finished")
	return mismatches, nil
}

func (s *BalanceService) GetBalanceAtTime(ctx context.Context, userID int, targetTime time.Time) (decimal.Decimal, error) {
	balance, err := s.ledger.BalanceAt(ctx, userID, targetTime)
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Time("target_time", targetTime).Msg("Error fetching balance at time")
		return decimal.Zero, fmt.Errorf("failed to fetch balance at time: %w", err)
	}
	return balance, nil
}
