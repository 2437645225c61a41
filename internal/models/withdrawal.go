package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Withdrawal struct {
	ID                 string           `json:"id"`
	UserID             int              `json:"user_id"`
	AgentID            *int             `json:"agent_id,omitempty"`
	Amount             decimal.Decimal  `json:"amount"`
	WithdrawalPhone    string           `json:"withdrawal_phone"`
	VerificationCode   string           `json:"verification_code,omitempty"`
	Fee                decimal.Decimal  `json:"fee"`
	AgentCommission    decimal.Decimal  `json:"agent_commission"`
	PlatformCommission decimal.Decimal  `json:"platform_commission"`
	Status             WithdrawalStatus `json:"status"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// WithdrawalUpdate carries the columns written alongside a status transition.
type WithdrawalUpdate struct {
	AgentID            *int
	Fee                decimal.Decimal
	AgentCommission    decimal.Decimal
	PlatformCommission decimal.Decimal
}

type WithdrawalRequest struct {
	ID                 string                  `json:"id"`
	AgentID            int                     `json:"agent_id"`
	UserID             int                     `json:"user_id"`
	Amount             decimal.Decimal         `json:"amount"`
	WithdrawalPhone    string                  `json:"withdrawal_phone"`
	Fee                decimal.Decimal         `json:"fee"`
	AgentCommission    decimal.Decimal         `json:"agent_commission"`
	PlatformCommission decimal.Decimal         `json:"platform_commission"`
	Status             WithdrawalRequestStatus `json:"status"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

type CreateWithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Phone  string          `json:"phone"`
}

type VerificationCodeRequest struct {
	Code string `json:"code"`
}

type AgentWithdrawalRequest struct {
	UserID int             `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Phone  string          `json:"phone"`
}

// Confirmation is the re-authentication a user presents to approve an agent request.
type Confirmation struct {
	Password  string `json:"password,omitempty"`
	Biometric bool   `json:"biometric,omitempty"`
}
