// Package apperrors holds the labeled protocol errors surfaced to callers.
package apperrors

import "errors"

// Validation errors: detected before any mutation.
var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrMissingRecipient     = errors.New("recipient identifier is required")
	ErrMissingPhone         = errors.New("withdrawal phone is required")
	ErrMissingCode          = errors.New("verification code is required")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrConfirmationRequired = errors.New("password or biometric confirmation is required")
	ErrMissingFields        = errors.New("full name, phone, email, and password are required")
)

// Logical conflicts.
var (
	ErrCodeNotFound       = errors.New("verification code not found or already used")
	ErrClaimCodeNotFound  = errors.New("claim code not found or already used")
	ErrSelfConfirmation   = errors.New("agents cannot confirm their own withdrawal")
	ErrSelfTransfer       = errors.New("cannot transfer to the same account")
	ErrCountryMismatch    = errors.New("agent and client must be in the same country")
	ErrNotAgent           = errors.New("operation requires an agent account")
	ErrForbidden          = errors.New("operation not permitted for this account")
	ErrClaimantMismatch   = errors.New("claim code was issued to a different recipient")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrTooManyAttempts    = errors.New("too many verification attempts, try again later")
	ErrUserNotFound       = errors.New("user not found")
	ErrRequestNotFound    = errors.New("withdrawal request not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrTransferNotFound   = errors.New("pending transfer not found")
	ErrUserExists         = errors.New("user with this email or phone already exists")
)
