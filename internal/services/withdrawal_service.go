package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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

const codeScope = "withdrawal_code"

// WithdrawalService implements self-service withdrawals: the user opens a
// withdrawal and an agent settles it in cash against its verification code.
type WithdrawalService struct {
	Deps
	calc    *fees.Calculator
	limiter AttemptLimiter
	now     func() time.Time
}

func NewWithdrawalService(deps Deps, calc *fees.Calculator, limiter AttemptLimiter) *WithdrawalService {
	return &WithdrawalService{
		Deps:    deps,
		calc:    calc,
		limiter: limiter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *WithdrawalService) CreateWithdrawal(ctx context.Context, session models.Session, amount decimal.Decimal, phone string) (w *models.Withdrawal, err error) {
	defer func() { observe("withdrawal.create", err) }()

	phone = strings.TrimSpace(phone)
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	if phone == "" {
		return nil, apperrors.ErrMissingPhone
	}
	// The fee comes out of the agent payout, so amount is all the owner needs.
	if err := s.requireFunds(ctx, session.UserID, amount); err != nil {
		return nil, err
	}

	status := models.WithdrawalPending
	if session.IsAgent() {
		status = models.WithdrawalAgentPending
	}
	now := s.now()
	w = &models.Withdrawal{
		ID:              uuid.NewString(),
		UserID:          session.UserID,
		Amount:          amount,
		WithdrawalPhone: phone,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		if w.VerificationCode, err = NewVerificationCode(); err != nil {
			return nil, err
		}
		err = s.Store.CreateWithdrawal(ctx, w)
		if !errors.Is(err, store.ErrDuplicateCode) {
			break
		}
	}
	if err != nil {
		s.Logger.Error().Err(err).Int("user_id", session.UserID).Msg("Error creating withdrawal")
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}

	s.Logger.Info().
		Str("withdrawal_id", w.ID).
		Int("user_id", session.UserID).
		Str("amount", amount.String()).
		Msg("Withdrawal created")
	s.publish(ctx, events.New(events.WithdrawalCreated, redactCode(w), session.UserID))
	return w, nil
}

// lookup resolves an open withdrawal for an agent acting on code.
func (s *WithdrawalService) lookup(ctx context.Context, agent models.Session, code string) (*models.Withdrawal, error) {
	if !agent.IsAgent() {
		return nil, apperrors.ErrNotAgent
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.ErrMissingCode
	}
	if err := s.limiter.Consume(ctx, codeScope, strconv.Itoa(agent.UserID)); err != nil {
		s.Logger.Warn().Err(err).Int("agent_id", agent.UserID).Msg("Verification code attempt refused")
		return nil, err
	}

	w, err := s.Store.FindOpenWithdrawalByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up verification code: %w", err)
	}
	if w.UserID == agent.UserID {
		return nil, apperrors.ErrSelfConfirmation
	}
	if w.AgentID != nil && *w.AgentID != agent.UserID {
		return nil, apperrors.ErrForbidden
	}
	return w, nil
}

// StartProcessing records that an agent has taken the withdrawal at the counter.
func (s *WithdrawalService) StartProcessing(ctx context.Context, agent models.Session, code string) (w *models.Withdrawal, err error) {
	defer func() { observe("withdrawal.start", err) }()

	w, err = s.lookup(ctx, agent, code)
	if err != nil {
		return nil, err
	}
	if !w.Status.CanTransitionTo(models.WithdrawalAgentPending) {
		return nil, apperrors.ErrInvalidTransition
	}

	agentID := agent.UserID
	err = s.Store.UpdateWithdrawalStatus(ctx, w.ID, w.Status, models.WithdrawalAgentPending, models.WithdrawalUpdate{AgentID: &agentID})
	if errors.Is(err, store.ErrStaleStatus) {
		return nil, apperrors.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update withdrawal: %w", err)
	}
	w.Status = models.WithdrawalAgentPending
	w.AgentID = &agentID

	s.Logger.Info().Str("withdrawal_id", w.ID).Int("agent_id", agentID).Msg("Withdrawal processing started")
	s.publish(ctx, events.New(events.WithdrawalProcessing, redactCode(w), w.UserID))
	return redactCode(w), nil
}

// ConfirmWithdrawal settles a withdrawal: the owner is debited the amount, the
// agent is credited the payout and the platform its commission.
func (s *WithdrawalService) ConfirmWithdrawal(ctx context.Context, agent models.Session, code string) (w *models.Withdrawal, err error) {
	defer func() { observe("withdrawal.confirm", err) }()

	w, err = s.lookup(ctx, agent, code)
	if err != nil {
		return nil, err
	}
	if err := s.requireFunds(ctx, w.UserID, w.Amount); err != nil {
		return nil, err
	}
	split, err := s.calc.Withdrawal(w.Amount)
	if err != nil {
		return nil, apperrors.ErrInvalidAmount
	}

	agentID := agent.UserID
	saga := s.Sagas.Start("withdrawal.confirm", w.ID)
	err = func() error {
		if _, err := saga.Apply(ctx, w.UserID, w.Amount.Neg()); err != nil {
			return fmt.Errorf("failed to debit owner: %w", ledgerError(err))
		}
		if _, err := saga.Apply(ctx, agentID, split.Payout(w.Amount)); err != nil {
			return fmt.Errorf("failed to credit agent: %w", err)
		}
		if split.PlatformCommission.IsPositive() {
			if _, err := saga.Apply(ctx, s.PlatformAccountID, split.PlatformCommission); err != nil {
				return fmt.Errorf("failed to credit platform commission: %w", err)
			}
		}
		err := s.Store.UpdateWithdrawalStatus(ctx, w.ID, w.Status, models.WithdrawalCompleted, models.WithdrawalUpdate{
			AgentID:            &agentID,
			Fee:                split.Fee,
			AgentCommission:    split.AgentCommission,
			PlatformCommission: split.PlatformCommission,
		})
		if errors.Is(err, store.ErrStaleStatus) {
			return apperrors.ErrCodeNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to complete withdrawal: %w", err)
		}
		return nil
	}()
	if err != nil {
		s.Logger.Error().Err(err).Str("withdrawal_id", w.ID).Int("agent_id", agentID).Msg("Error confirming withdrawal")
		if aerr := saga.Abort(ctx); aerr != nil {
			s.Logger.Error().Err(aerr).Str("withdrawal_id", w.ID).Msg("Withdrawal compensation incomplete")
		}
		return nil, err
	}
	saga.Commit(ctx)

	w.Status = models.WithdrawalCompleted
	w.AgentID = &agentID
	w.Fee = split.Fee
	w.AgentCommission = split.AgentCommission
	w.PlatformCommission = split.PlatformCommission
	w.UpdatedAt = s.now()

	s.Logger.Info().
		Str("withdrawal_id", w.ID).
		Int("user_id", w.UserID).
		Int("agent_id", agentID).
		Str("amount", w.Amount.String()).
		Str("fee", split.Fee.String()).
		Msg("Withdrawal confirmed")
	s.publish(ctx, events.New(events.WithdrawalCompleted, redactCode(w), w.UserID, agentID))
	return redactCode(w), nil
}

func (s *WithdrawalService) RejectWithdrawal(ctx context.Context, agent models.Session, code string) (w *models.Withdrawal, err error) {
	defer func() { observe("withdrawal.reject", err) }()

	w, err = s.lookup(ctx, agent, code)
	if err != nil {
		return nil, err
	}
	agentID := agent.UserID
	if err := s.close(ctx, w, models.WithdrawalUpdate{AgentID: &agentID}); err != nil {
		return nil, err
	}

	s.Logger.Info().Str("withdrawal_id", w.ID).Int("agent_id", agentID).Msg("Withdrawal rejected")
	s.publish(ctx, events.New(events.WithdrawalRejected, redactCode(w), w.UserID))
	return redactCode(w), nil
}

// CancelWithdrawal lets the owner close a withdrawal no agent has taken yet.
func (s *WithdrawalService) CancelWithdrawal(ctx context.Context, session models.Session, id string) (w *models.Withdrawal, err error) {
	defer func() { observe("withdrawal.cancel", err) }()

	w, err = s.Store.GetWithdrawal(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawal: %w", err)
	}
	if w.UserID != session.UserID {
		return nil, apperrors.ErrForbidden
	}
	if w.Status != models.WithdrawalPending {
		return nil, apperrors.ErrInvalidTransition
	}
	if err := s.close(ctx, w, models.WithdrawalUpdate{}); err != nil {
		return nil, err
	}

	s.Logger.Info().Str("withdrawal_id", w.ID).Int("user_id", session.UserID).Msg("Withdrawal cancelled by owner")
	s.publish(ctx, events.New(events.WithdrawalRejected, redactCode(w), w.UserID))
	return redactCode(w), nil
}

func (s *WithdrawalService) close(ctx context.Context, w *models.Withdrawal, upd models.WithdrawalUpdate) error {
	if !w.Status.CanTransitionTo(models.WithdrawalRejected) {
		return apperrors.ErrInvalidTransition
	}
	err := s.Store.UpdateWithdrawalStatus(ctx, w.ID, w.Status, models.WithdrawalRejected, upd)
	if errors.Is(err, store.ErrStaleStatus) {
		return apperrors.ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to reject withdrawal: %w", err)
	}
	w.Status = models.WithdrawalRejected
	if upd.AgentID != nil {
		w.AgentID = upd.AgentID
	}
	return nil
}

// ListWithdrawals returns the caller's withdrawals. Codes stay visible only
// while the withdrawal is open.
func (s *WithdrawalService) ListWithdrawals(ctx context.Context, session models.Session) ([]*models.Withdrawal, error) {
	withdrawals, err := s.Store.ListWithdrawalsByUser(ctx, session.UserID)
	if err != nil {
		s.Logger.Error().Err(err).Int("user_id", session.UserID).Msg("Error fetching withdrawals")
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	for i, w := range withdrawals {
		if !w.Status.Open() {
			withdrawals[i] = redactCode(w)
		}
	}
	return withdrawals, nil
}

func redactCode(w *models.Withdrawal) *models.Withdrawal {
	cp := *w
	cp.VerificationCode = ""
	return &cp
}
