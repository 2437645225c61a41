// Package store defines the ledger persistence contracts and their MySQL
// implementation. IncrementBalance is the only operation that mutates a stored
// balance.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"sendflow/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrSelfTransfer      = errors.New("sender and recipient are the same account")
	ErrStaleStatus       = errors.New("record is no longer in the expected status")
	ErrDuplicateCode     = errors.New("code already in use")
	ErrDuplicateProfile  = errors.New("profile with this email or phone already exists")
)

// Ledger is the Balance Primitive plus its read-only accessors.
type Ledger interface {
	// IncrementBalance atomically adds delta (negative for a debit) to the
	// account balance and returns the resulting balance. A result below zero
	// is refused with ErrInsufficientFunds and nothing is written.
	IncrementBalance(ctx context.Context, accountID int, delta decimal.Decimal, reference string) (decimal.Decimal, error)
	GetBalance(ctx context.Context, accountID int) (*models.Balance, error)
	BalanceHistory(ctx context.Context, accountID, limit, offset int) ([]*models.BalanceHistory, error)
	SumBalanceHistory(ctx context.Context, accountID int) (decimal.Decimal, error)
	BalanceAt(ctx context.Context, accountID int, at time.Time) (decimal.Decimal, error)
	HasReference(ctx context.Context, accountID int, reference string) (bool, error)
}

type ProfileStore interface {
	CreateProfile(ctx context.Context, u *models.User) (int, error)
	GetProfile(ctx context.Context, id int) (*models.User, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.User, error)
	// FindProfileByIdentifier resolves an exact phone number or email.
	FindProfileByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	SearchProfiles(ctx context.Context, term string, excludeID, limit int) ([]*models.User, error)
	ListAccountIDs(ctx context.Context) ([]int, error)
	UpdateRole(ctx context.Context, id int, role models.Role) error
}

type TransferStore interface {
	// ProcessMoneyTransfer resolves the recipient and moves the money, the fee
	// and the commissions in a single transaction. It returns
	// ErrRecipientNotFound when the identifier matches no profile.
	ProcessMoneyTransfer(ctx context.Context, req models.MoneyTransfer) (*models.Transfer, error)
	ListTransfers(ctx context.Context, userID, limit, offset int) ([]*models.Transfer, error)

	CreatePendingTransfer(ctx context.Context, p *models.PendingTransfer) error
	GetPendingTransfer(ctx context.Context, id string) (*models.PendingTransfer, error)
	GetPendingTransferByCode(ctx context.Context, code string) (*models.PendingTransfer, error)
	UpdatePendingTransferStatus(ctx context.Context, id string, from, to models.PendingTransferStatus, claimedBy *int) error
	ListPendingTransfersBefore(ctx context.Context, before time.Time, limit int) ([]*models.PendingTransfer, error)
}

type WithdrawalStore interface {
	// CreateWithdrawal fails with ErrDuplicateCode when the verification code
	// already belongs to an open withdrawal.
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	FindOpenWithdrawalByCode(ctx context.Context, code string) (*models.Withdrawal, error)
	// UpdateWithdrawalStatus applies from→to only if the row is still in from.
	// Closing statuses release the verification code.
	UpdateWithdrawalStatus(ctx context.Context, id string, from, to models.WithdrawalStatus, upd models.WithdrawalUpdate) error
	ListWithdrawalsByUser(ctx context.Context, userID int) ([]*models.Withdrawal, error)
}

type WithdrawalRequestStore interface {
	CreateWithdrawalRequest(ctx context.Context, r *models.WithdrawalRequest) error
	GetWithdrawalRequest(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ListPendingRequestsForUser(ctx context.Context, userID int) ([]*models.WithdrawalRequest, error)
	UpdateWithdrawalRequestStatus(ctx context.Context, r *models.WithdrawalRequest, from, to models.WithdrawalRequestStatus) error
}

type RechargeStore interface {
	CreateRecharge(ctx context.Context, r *models.Recharge) error
	ListRechargesByAgent(ctx context.Context, agentID, limit, offset int) ([]*models.Recharge, error)
}

type CompensationStore interface {
	RecordCompensation(ctx context.Context, c *models.Compensation) error
	UpdateCompensation(ctx context.Context, c *models.Compensation) error
	// ClaimCompensation moves a compensation from one status to another only if
	// it is still in from. It returns ErrStaleStatus otherwise.
	ClaimCompensation(ctx context.Context, id string, from, to models.CompensationStatus) error
	// ReleaseSaga moves every armed compensation of the saga to released.
	ReleaseSaga(ctx context.Context, sagaID string) error
	FetchCompensations(ctx context.Context, status models.CompensationStatus, before time.Time, limit int) ([]*models.Compensation, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	Ledger
	ProfileStore
	TransferStore
	WithdrawalStore
	WithdrawalRequestStore
	RechargeStore
	CompensationStore
}
