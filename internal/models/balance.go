package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Balance struct {
	UserID        int             `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}

type BalanceHistory struct {
	ID           int             `json:"id"`
	UserID       int             `json:"user_id"`
	Balance      decimal.Decimal `json:"balance"`
	ChangeAmount decimal.Decimal `json:"change_amount"`
	Reference    string          `json:"reference,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
