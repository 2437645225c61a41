package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transfer struct {
	ID                  int             `json:"id"`
	SenderID            int             `json:"sender_id"`
	RecipientID         *int            `json:"recipient_id,omitempty"`
	RecipientIdentifier string          `json:"recipient_identifier"`
	Amount              decimal.Decimal `json:"amount"`
	Fee                 decimal.Decimal `json:"fee"`
	AgentCommission     decimal.Decimal `json:"agent_commission"`
	PlatformCommission  decimal.Decimal `json:"platform_commission"`
	Status              TransferStatus  `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

// MoneyTransfer is the input of the combined server-side transfer procedure.
type MoneyTransfer struct {
	SenderID            int
	RecipientIdentifier string
	Amount              decimal.Decimal
	Fee                 decimal.Decimal
	AgentCommission     decimal.Decimal
	PlatformCommission  decimal.Decimal
	PlatformAccountID   int
}

// Debit is the total taken from the sender by the procedure.
func (m MoneyTransfer) Debit() decimal.Decimal {
	return m.Amount.Add(m.Fee)
}

type PendingTransfer struct {
	ID                  string                `json:"id"`
	SenderID            int                   `json:"sender_id"`
	RecipientIdentifier string                `json:"recipient_identifier"`
	Amount              decimal.Decimal       `json:"amount"`
	Fee                 decimal.Decimal       `json:"fee"`
	ClaimCode           string                `json:"claim_code,omitempty"`
	Status              PendingTransferStatus `json:"status"`
	ClaimedBy           *int                  `json:"claimed_by,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	ClaimedAt           *time.Time            `json:"claimed_at,omitempty"`
}

type TransferRequest struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

type ClaimRequest struct {
	ClaimCode string `json:"claim_code"`
}

type TransferResult struct {
	Success         bool             `json:"success"`
	Transfer        *Transfer        `json:"transfer,omitempty"`
	PendingTransfer *PendingTransfer `json:"pending_transfer,omitempty"`
	ClaimCode       string           `json:"claim_code,omitempty"`
}
