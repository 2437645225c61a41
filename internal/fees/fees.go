// Package fees computes transaction fees and their agent/platform commission split.
// Every function here is pure.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"

	"sendflow/internal/models"
)

var ErrInvalidAmount = errors.New("amount must be greater than zero")

// Split is a total fee and its two commission components.
// Fee always equals AgentCommission + PlatformCommission.
type Split struct {
	Fee                decimal.Decimal `json:"fee"`
	Rate               decimal.Decimal `json:"rate"`
	AgentCommission    decimal.Decimal `json:"agent_commission"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
}

// Payout is what a settling agent receives for a withdrawal of amount.
func (s Split) Payout(amount decimal.Decimal) decimal.Decimal {
	return amount.Sub(s.Fee).Add(s.AgentCommission)
}

type Schedule struct {
	Rate      decimal.Decimal
	AgentRate decimal.Decimal
}

type Config struct {
	Scale            int32
	Transfers        *RateTable
	Withdrawal       Schedule
	DepositAgentRate decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		Scale:      2,
		Transfers:  NewRateTable(decimal.RequireFromString("0.065"), decimal.RequireFromString("0.01")),
		Withdrawal: Schedule{Rate: decimal.RequireFromString("0.015"), AgentRate: decimal.RequireFromString("0.005")},
	}
}

type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	if cfg.Transfers == nil {
		cfg.Transfers = DefaultConfig().Transfers
	}
	return &Calculator{cfg: cfg}
}

// Transfer prices a transfer. The agent component is only non-zero when the
// actor is an agent; ordinary users pay the whole fee to the platform.
func (c *Calculator) Transfer(amount decimal.Decimal, senderCountry, recipientCountry string, role models.Role) (Split, error) {
	if !amount.IsPositive() {
		return Split{}, ErrInvalidAmount
	}
	schedule := c.cfg.Transfers.Lookup(senderCountry, recipientCountry, role)
	if role != models.RoleAgent {
		schedule.AgentRate = decimal.Zero
	}
	return c.split(amount, schedule), nil
}

func (c *Calculator) Withdrawal(amount decimal.Decimal) (Split, error) {
	if !amount.IsPositive() {
		return Split{}, ErrInvalidAmount
	}
	return c.split(amount, c.cfg.Withdrawal), nil
}

// Deposit is always fee-free. The agent commission, if any, is funded by the
// platform, so PlatformCommission is its negation.
func (c *Calculator) Deposit(amount decimal.Decimal) (Split, error) {
	if !amount.IsPositive() {
		return Split{}, ErrInvalidAmount
	}
	agent := c.round(amount.Mul(c.cfg.DepositAgentRate))
	return Split{
		Fee:                decimal.Zero,
		Rate:               decimal.Zero,
		AgentCommission:    agent,
		PlatformCommission: agent.Neg(),
	}, nil
}

func (c *Calculator) split(amount decimal.Decimal, s Schedule) Split {
	fee := c.round(amount.Mul(s.Rate))
	agent := c.round(amount.Mul(s.AgentRate))
	if agent.GreaterThan(fee) {
		agent = fee
	}
	return Split{
		Fee:                fee,
		Rate:               s.Rate,
		AgentCommission:    agent,
		PlatformCommission: fee.Sub(agent),
	}
}

func (c *Calculator) round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.cfg.Scale)
}
