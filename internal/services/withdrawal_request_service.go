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

type WithdrawalRequestOptions struct {
	// FeeFree settles agent-initiated withdrawals without a fee.
	FeeFree          bool
	BiometricEnabled bool
}

// WithdrawalRequestService implements agent-initiated withdrawals: the agent
// proposes, the user re-authenticates to approve, and the money then moves
// like a confirmed self-service withdrawal.
type WithdrawalRequestService struct {
	Deps
	calc  *fees.Calculator
	users *UserService
	opts  WithdrawalRequestOptions
	now   func() time.Time
}

func NewWithdrawalRequestService(deps Deps, calc *fees.Calculator, users *UserService, opts WithdrawalRequestOptions) *WithdrawalRequestService {
	return &WithdrawalRequestService{
		Deps:  deps,
		calc:  calc,
		users: users,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *WithdrawalRequestService) split(amount decimal.Decimal) (fees.Split, error) {
	if s.opts.FeeFree {
		if !amount.IsPositive() {
			return fees.Split{}, fees.ErrInvalidAmount
		}
		return fees.Split{}, nil
	}
	return s.calc.Withdrawal(amount)
}

func (s *WithdrawalRequestService) CreateRequest(ctx context.Context, agent models.Session, userID int, amount decimal.Decimal, phone string) (r *models.WithdrawalRequest, err error) {
	defer func() { observe("withdrawal_request.create", err) }()

	if !agent.IsAgent() {
		return nil, apperrors.ErrNotAgent
	}
	phone = strings.TrimSpace(phone)
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	if phone == "" {
		return nil, apperrors.ErrMissingPhone
	}

	user, err := s.Store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.ID == agent.UserID {
		return nil, apperrors.ErrSelfConfirmation
	}
	if !strings.EqualFold(user.Country, agent.Country) {
		return nil, apperrors.ErrCountryMismatch
	}

	split, err := s.split(amount)
	if err != nil {
		return nil, apperrors.ErrInvalidAmount
	}

	now := s.now()
	r = &models.WithdrawalRequest{
		ID:                 uuid.NewString(),
		AgentID:            agent.UserID,
		UserID:             user.ID,
		Amount:             amount,
		WithdrawalPhone:    phone,
		Fee:                split.Fee,
		AgentCommission:    split.AgentCommission,
		PlatformCommission: split.PlatformCommission,
		Status:             models.RequestPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.Store.CreateWithdrawalRequest(ctx, r); err != nil {
		s.Logger.Error().Err(err).Int("agent_id", agent.UserID).Int("user_id", user.ID).Msg("Error creating withdrawal request")
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	s.Logger.Info().
		Str("request_id", r.ID).
		Int("agent_id", agent.UserID).
		Int("user_id", user.ID).
		Str("amount", amount.String()).
		Msg("Withdrawal request created")
	s.publish(ctx, events.New(events.WithdrawalRequestCreated, r, user.ID))
	return r, nil
}

func (s *WithdrawalRequestService) ListPendingForUser(ctx context.Context, session models.Session) ([]*models.WithdrawalRequest, error) {
	requests, err := s.Store.ListPendingRequestsForUser(ctx, session.UserID)
	if err != nil {
		s.Logger.Error().Err(err).Int("user_id", session.UserID).Msg("Error fetching withdrawal requests")
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	return requests, nil
}

func (s *WithdrawalRequestService) owned(ctx context.Context, session models.Session, id string) (*models.WithdrawalRequest, error) {
	r, err := s.Store.GetWithdrawalRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawal request: %w", err)
	}
	if r.UserID != session.UserID {
		return nil, apperrors.ErrForbidden
	}
	return r, nil
}

func (s *WithdrawalRequestService) transition(ctx context.Context, r *models.WithdrawalRequest, to models.WithdrawalRequestStatus) error {
	if !r.Status.CanTransitionTo(to) {
		return apperrors.ErrInvalidTransition
	}
	err := s.Store.UpdateWithdrawalRequestStatus(ctx, r, r.Status, to)
	if errors.Is(err, store.ErrStaleStatus) {
		return apperrors.ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to update withdrawal request: %w", err)
	}
	r.Status = to
	r.UpdatedAt = s.now()
	return nil
}

// ApproveRequest re-authenticates the user and settles the request.
func (s *WithdrawalRequestService) ApproveRequest(ctx context.Context, session models.Session, id string, confirmation models.Confirmation) (r *models.WithdrawalRequest, err error) {
	defer func() { observe("withdrawal_request.approve", err) }()

	r, err = s.owned(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RequestPending {
		return nil, apperrors.ErrInvalidTransition
	}

	switch {
	case confirmation.Password != "":
		if err := s.users.VerifyPassword(ctx, session.UserID, confirmation.Password); err != nil {
			return nil, err
		}
	case confirmation.Biometric && s.opts.BiometricEnabled:
		s.Logger.Info().Int("user_id", session.UserID).Str("request_id", r.ID).Msg("Biometric confirmation accepted")
	default:
		return nil, apperrors.ErrConfirmationRequired
	}

	if err := s.transition(ctx, r, models.RequestApproved); err != nil {
		return nil, err
	}
	return s.ProcessApproved(ctx, r)
}

// ProcessApproved moves the money of an approved request. On failure the
// applied steps are compensated and the request is rejected.
func (s *WithdrawalRequestService) ProcessApproved(ctx context.Context, r *models.WithdrawalRequest) (*models.WithdrawalRequest, error) {
	if r.Status != models.RequestApproved {
		return nil, apperrors.ErrInvalidTransition
	}

	err := func() error {
		split, err := s.split(r.Amount)
		if err != nil {
			return apperrors.ErrInvalidAmount
		}
		r.Fee = split.Fee
		r.AgentCommission = split.AgentCommission
		r.PlatformCommission = split.PlatformCommission

		if err := s.requireFunds(ctx, r.UserID, r.Amount); err != nil {
			return err
		}

		saga := s.Sagas.Start("withdrawal_request.process", r.ID)
		err = func() error {
			if _, err := saga.Apply(ctx, r.UserID, r.Amount.Neg()); err != nil {
				return fmt.Errorf("failed to debit user: %w", ledgerError(err))
			}
			if _, err := saga.Apply(ctx, r.AgentID, split.Payout(r.Amount)); err != nil {
				return fmt.Errorf("failed to credit agent: %w", err)
			}
			if split.PlatformCommission.IsPositive() {
				if _, err := saga.Apply(ctx, s.PlatformAccountID, split.PlatformCommission); err != nil {
					return fmt.Errorf("failed to credit platform commission: %w", err)
				}
			}
			return s.transition(ctx, r, models.RequestCompleted)
		}()
		if err != nil {
			if aerr := saga.Abort(ctx); aerr != nil {
				s.Logger.Error().Err(aerr).Str("request_id", r.ID).Msg("Withdrawal request compensation incomplete")
			}
			return err
		}
		saga.Commit(ctx)
		return nil
	}()
	if err != nil {
		s.Logger.Error().Err(err).Str("request_id", r.ID).Int("user_id", r.UserID).Msg("Error processing withdrawal request")
		if terr := s.transition(context.WithoutCancel(ctx), r, models.RequestRejected); terr != nil {
			s.Logger.Error().Err(terr).Str("request_id", r.ID).Msg("Error rejecting failed withdrawal request")
		} else {
			s.publish(ctx, events.New(events.WithdrawalRequestRejected, r, r.UserID, r.AgentID))
		}
		return nil, err
	}

	s.Logger.Info().
		Str("request_id", r.ID).
		Int("user_id", r.UserID).
		Int("agent_id", r.AgentID).
		Str("amount", r.Amount.String()).
		Str("fee", r.Fee.String()).
		Msg("Withdrawal request completed")
	s.publish(ctx, events.New(events.WithdrawalRequestCompleted, r, r.UserID, r.AgentID))
	return r, nil
}

func (s *WithdrawalRequestService) RejectRequest(ctx context.Context, session models.Session, id string) (r *models.WithdrawalRequest, err error) {
	defer func() { observe("withdrawal_request.reject", err) }()

	r, err = s.owned(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RequestPending {
		return nil, apperrors.ErrInvalidTransition
	}
	if err := s.transition(ctx, r, models.RequestRejected); err != nil {
		return nil, err
	}

	s.Logger.Info().Str("request_id", r.ID).Int("user_id", session.UserID).Msg("Withdrawal request rejected")
	s.publish(ctx, events.New(events.WithdrawalRequestRejected, r, r.UserID, r.AgentID))
	return r, nil
}
