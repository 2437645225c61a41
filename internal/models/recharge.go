package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RechargeStatus string

const RechargeCompleted RechargeStatus = "completed"

type Recharge struct {
	ID              string          `json:"id"`
	AgentID         int             `json:"agent_id"`
	RecipientID     int             `json:"recipient_id"`
	Amount          decimal.Decimal `json:"amount"`
	AgentCommission decimal.Decimal `json:"agent_commission"`
	Status          RechargeStatus  `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

type DepositRequest struct {
	RecipientID int             `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
}
