package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Compensation is the inverse of one forward balance mutation of a saga.
type Compensation struct {
	ID        string             `json:"id"`
	SagaID    string             `json:"saga_id"`
	Operation string             `json:"operation"`
	Reference string             `json:"reference"`
	AccountID int                `json:"account_id"`
	Delta     decimal.Decimal    `json:"delta"`
	Status    CompensationStatus `json:"status"`
	Attempts  int                `json:"attempts"`
	LastError string             `json:"last_error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewCompensation(sagaID, operation, reference string, accountID int, delta decimal.Decimal) *Compensation {
	now := time.Now().UTC()
	return &Compensation{
		ID:        uuid.NewString(),
		SagaID:    sagaID,
		Operation: operation,
		Reference: reference,
		AccountID: accountID,
		Delta:     delta,
		Status:    CompensationArmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ForwardReference tags the ledger entry of the step this compensation undoes.
func (c *Compensation) ForwardReference() string {
	return "saga:" + c.SagaID + ":" + c.ID
}

// InverseReference tags the ledger entry written when the compensation is applied.
func (c *Compensation) InverseReference() string {
	return "compensation:" + c.ID
}
