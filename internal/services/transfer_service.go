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

const expiryBatchSize = 100

type TransferService struct {
	Deps
	calc *fees.Calculator
	now  func() time.Time
}

func NewTransferService(deps Deps, calc *fees.Calculator) *TransferService {
	return &TransferService{
		Deps: deps,
		calc: calc,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ProcessTransfer sends amount to the profile matching identifier. When no
// profile matches, the money is held as a pending transfer redeemable with
// the returned claim code.
func (s *TransferService) ProcessTransfer(ctx context.Context, session models.Session, identifier string, amount decimal.Decimal) (result *models.TransferResult, err error) {
	defer func() { observe("transfer", err) }()

	identifier = normalizeIdentifier(identifier)
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	if identifier == "" {
		return nil, apperrors.ErrMissingRecipient
	}
	if identifier == session.Phone || strings.EqualFold(identifier, session.Email) {
		return nil, apperrors.ErrSelfTransfer
	}

	var recipientCountry string
	recipient, err := s.Store.FindProfileByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		recipientCountry = recipient.Country
	case !errors.Is(err, store.ErrNotFound):
		s.Logger.Error().Err(err).Str("recipient", identifier).Msg("Error resolving recipient")
		return nil, fmt.Errorf("failed to resolve recipient: %w", err)
	}

	split, err := s.calc.Transfer(amount, session.Country, recipientCountry, session.Role)
	if err != nil {
		return nil, apperrors.ErrInvalidAmount
	}
	if err := s.requireFunds(ctx, session.UserID, amount.Add(split.Fee)); err != nil {
		return nil, err
	}

	transfer, err := s.Store.ProcessMoneyTransfer(ctx, models.MoneyTransfer{
		SenderID:            session.UserID,
		RecipientIdentifier: identifier,
		Amount:              amount,
		Fee:                 split.Fee,
		AgentCommission:     split.AgentCommission,
		PlatformCommission:  split.PlatformCommission,
		PlatformAccountID:   s.PlatformAccountID,
	})
	switch {
	case errors.Is(err, store.ErrRecipientNotFound):
		return s.holdPending(ctx, session, identifier, amount, split)
	case errors.Is(err, store.ErrSelfTransfer):
		return nil, apperrors.ErrSelfTransfer
	case err != nil:
		s.Logger.Error().Err(err).Int("sender_id", session.UserID).Str("recipient", identifier).Msg("Error processing transfer")
		return nil, fmt.Errorf("failed to process transfer: %w", ledgerError(err))
	}

	s.Logger.Info().
		Int("transfer_id", transfer.ID).
		Int("sender_id", session.UserID).
		Str("amount", amount.String()).
		Str("fee", split.Fee.String()).
		Msg("Transfer completed")

	userIDs := []int{session.UserID}
	if transfer.RecipientID != nil {
		userIDs = append(userIDs, *transfer.RecipientID)
	}
	s.publish(ctx, events.New(events.TransferCompleted, transfer, userIDs...))

	return &models.TransferResult{Success: true, Transfer: transfer}, nil
}

func (s *TransferService) holdPending(ctx context.Context, session models.Session, identifier string, amount decimal.Decimal, split fees.Split) (*models.TransferResult, error) {
	pending := &models.PendingTransfer{
		ID:                  uuid.NewString(),
		SenderID:            session.UserID,
		RecipientIdentifier: identifier,
		Amount:              amount,
		Fee:                 split.Fee,
		Status:              models.PendingTransferPending,
		CreatedAt:           s.now(),
	}

	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		if pending.ClaimCode, err = NewClaimCode(); err != nil {
			return nil, err
		}
		err = s.Store.CreatePendingTransfer(ctx, pending)
		if !errors.Is(err, store.ErrDuplicateCode) {
			break
		}
	}
	if err != nil {
		s.Logger.Error().Err(err).Int("sender_id", session.UserID).Msg("Error creating pending transfer")
		return nil, fmt.Errorf("failed to create pending transfer: %w", err)
	}

	saga := s.Sagas.Start("transfer.pending", pending.ID)
	err = func() error {
		if _, err := saga.Apply(ctx, session.UserID, amount.Add(split.Fee).Neg()); err != nil {
			return fmt.Errorf("failed to debit sender: %w", ledgerError(err))
		}
		if split.AgentCommission.IsPositive() {
			if _, err := saga.Apply(ctx, session.UserID, split.AgentCommission); err != nil {
				return fmt.Errorf("failed to credit agent commission: %w", err)
			}
		}
		if split.PlatformCommission.IsPositive() {
			if _, err := saga.Apply(ctx, s.PlatformAccountID, split.PlatformCommission); err != nil {
				return fmt.Errorf("failed to credit platform commission: %w", err)
			}
		}
		return nil
	}()
	if err != nil {
		s.Logger.Error().Err(err).Str("pending_transfer_id", pending.ID).Msg("Error holding pending transfer")
		if aerr := saga.Abort(ctx); aerr != nil {
			s.Logger.Error().Err(aerr).Str("pending_transfer_id", pending.ID).Msg("Pending transfer compensation incomplete")
		}
		if uerr := s.Store.UpdatePendingTransferStatus(context.WithoutCancel(ctx), pending.ID,
			models.PendingTransferPending, models.PendingTransferCancelled, nil); uerr != nil {
			s.Logger.Error().Err(uerr).Str("pending_transfer_id", pending.ID).Msg("Error cancelling pending transfer")
		}
		return nil, err
	}
	saga.Commit(ctx)

	s.Logger.Info().
		Str("pending_transfer_id", pending.ID).
		Int("sender_id", session.UserID).
		Str("amount", amount.String()).
		Msg("Pending transfer created for unregistered recipient")
	s.publish(ctx, events.New(events.TransferPending, redactClaimCode(pending), session.UserID))

	return &models.TransferResult{
		Success:         true,
		PendingTransfer: pending,
		ClaimCode:       pending.ClaimCode,
	}, nil
}

// ClaimPendingTransfer credits a pending transfer to the caller, whose phone
// or email must be the identifier the sender used.
func (s *TransferService) ClaimPendingTransfer(ctx context.Context, session models.Session, code string) (pending *models.PendingTransfer, err error) {
	defer func() { observe("transfer.claim", err) }()

	code = normalizeCode(code)
	if code == "" {
		return nil, apperrors.ErrMissingCode
	}

	pending, err = s.Store.GetPendingTransferByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrClaimCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up claim code: %w", err)
	}
	if pending.Status != models.PendingTransferPending {
		return nil, apperrors.ErrClaimCodeNotFound
	}
	if pending.RecipientIdentifier != session.Phone && !strings.EqualFold(pending.RecipientIdentifier, session.Email) {
		return nil, apperrors.ErrClaimantMismatch
	}

	claimant := session.UserID
	err = s.Store.UpdatePendingTransferStatus(ctx, pending.ID, models.PendingTransferPending, models.PendingTransferClaimed, &claimant)
	if errors.Is(err, store.ErrStaleStatus) {
		return nil, apperrors.ErrClaimCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending transfer: %w", err)
	}

	saga := s.Sagas.Start("transfer.claim", pending.ID)
	if _, err := saga.Apply(ctx, claimant, pending.Amount); err != nil {
		s.Logger.Error().Err(err).Str("pending_transfer_id", pending.ID).Int("claimant_id", claimant).Msg("Error crediting claimant")
		// The credit never landed; reopen the transfer so the code stays redeemable.
		if uerr := s.Store.UpdatePendingTransferStatus(context.WithoutCancel(ctx), pending.ID,
			models.PendingTransferClaimed, models.PendingTransferPending, nil); uerr != nil {
			s.Logger.Error().Err(uerr).Str("pending_transfer_id", pending.ID).Msg("Error reopening pending transfer")
		}
		return nil, fmt.Errorf("failed to credit claimant: %w", err)
	}
	saga.Commit(ctx)

	pending, err = s.Store.GetPendingTransfer(ctx, pending.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload pending transfer: %w", err)
	}

	s.Logger.Info().Str("pending_transfer_id", pending.ID).Int("claimant_id", claimant).Msg("Pending transfer claimed")
	s.publish(ctx, events.New(events.TransferClaimed, redactClaimCode(pending), pending.SenderID, claimant))
	return pending, nil
}

// CancelPendingTransfer refunds the amount of an unclaimed transfer to its
// sender. The fee is kept.
func (s *TransferService) CancelPendingTransfer(ctx context.Context, session models.Session, id string) (pending *models.PendingTransfer, err error) {
	defer func() { observe("transfer.cancel", err) }()

	pending, err = s.Store.GetPendingTransfer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transfer: %w", err)
	}
	if pending.SenderID != session.UserID {
		return nil, apperrors.ErrForbidden
	}
	if err := s.refund(ctx, pending, models.PendingTransferCancelled); err != nil {
		return nil, err
	}
	return pending, nil
}

// ExpirePendingTransfers refunds every transfer still unclaimed after ttl and
// returns how many were expired.
func (s *TransferService) ExpirePendingTransfers(ctx context.Context, ttl time.Duration) (int, error) {
	stale, err := s.Store.ListPendingTransfersBefore(ctx, s.now().Add(-ttl), expiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired pending transfers: %w", err)
	}

	var expired int
	for _, p := range stale {
		if err := s.refund(ctx, p, models.PendingTransferExpired); err != nil {
			s.Logger.Error().Err(err).Str("pending_transfer_id", p.ID).Msg("Error expiring pending transfer")
			continue
		}
		expired++
	}
	if expired > 0 {
		s.Logger.Info().Int("expired", expired).Msg("Pending transfers expired")
	}
	return expired, nil
}

func (s *TransferService) refund(ctx context.Context, p *models.PendingTransfer, to models.PendingTransferStatus) error {
	if !p.Status.CanTransitionTo(to) {
		return apperrors.ErrInvalidTransition
	}
	err := s.Store.UpdatePendingTransferStatus(ctx, p.ID, models.PendingTransferPending, to, nil)
	if errors.Is(err, store.ErrStaleStatus) {
		return apperrors.ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to update pending transfer: %w", err)
	}

	saga := s.Sagas.Start("transfer.refund", p.ID)
	if _, err := saga.Apply(ctx, p.SenderID, p.Amount); err != nil {
		if uerr := s.Store.UpdatePendingTransferStatus(context.WithoutCancel(ctx), p.ID,
			to, models.PendingTransferPending, nil); uerr != nil {
			s.Logger.Error().Err(uerr).Str("pending_transfer_id", p.ID).Msg("Error reopening pending transfer")
		}
		return fmt.Errorf("failed to refund sender: %w", err)
	}
	saga.Commit(ctx)

	p.Status = to
	s.Logger.Info().
		Str("pending_transfer_id", p.ID).
		Int("sender_id", p.SenderID).
		Str("status", string(to)).
		Str("refund", p.Amount.String()).
		Msg("Pending transfer refunded")
	s.publish(ctx, events.New(events.TransferRefunded, redactClaimCode(p), p.SenderID))
	return nil
}

func (s *TransferService) ListTransfers(ctx context.Context, session models.Session, limit, offset int) ([]*models.Transfer, error) {
	transfers, err := s.Store.ListTransfers(ctx, session.UserID, limit, offset)
	if err != nil {
		s.Logger.Error().Err(err).Int("user_id", session.UserID).Msg("Error fetching transfers")
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return transfers, nil
}

// redactClaimCode copies p without its claim code, which only the sender may see.
func redactClaimCode(p *models.PendingTransfer) *models.PendingTransfer {
	cp := *p
	cp.ClaimCode = ""
	return &cp
}

// normalizeIdentifier trims a phone or email; emails are stored lower-case.
func normalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier)
	}
	return identifier
}
