package fees

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"sendflow/internal/models"
)

const wildcard = "*"

type rateKey struct {
	sender    string
	recipient string
	role      string
}

// RateTable resolves a transfer Schedule by (sender country, recipient country, role).
type RateTable struct {
	domestic      Schedule
	international Schedule
	entries       map[rateKey]Schedule
}

func NewRateTable(rate, agentRate decimal.Decimal) *RateTable {
	s := Schedule{Rate: rate, AgentRate: agentRate}
	return &RateTable{domestic: s, international: s, entries: map[rateKey]Schedule{}}
}

func (t *RateTable) SetInternational(s Schedule) {
	t.international = s
}

func (t *RateTable) Set(sender, recipient string, role string, s Schedule) {
	t.entries[rateKey{norm(sender), norm(recipient), norm(role)}] = s
}

// Lookup tries the exact key, then any role, then any corridor for the role,
// then falls back to the domestic or international default.
func (t *RateTable) Lookup(sender, recipient string, role models.Role) Schedule {
	sender, recipient = norm(sender), norm(recipient)
	if recipient == wildcard {
		recipient = sender
	}
	r := norm(string(role))
	for _, k := range []rateKey{
		{sender, recipient, r},
		{sender, recipient, wildcard},
		{wildcard, wildcard, r},
	} {
		if s, ok := t.entries[k]; ok {
			return s
		}
	}
	if sender != recipient && sender != wildcard {
		return t.international
	}
	return t.domestic
}

// ParseRateTable reads entries of the form SENDER:RECIPIENT:ROLE=rate[/agentRate],
// comma separated, on top of base.
func ParseRateTable(base *RateTable, raw string) (*RateTable, error) {
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("rate entry %q: missing '='", item)
		}
		parts := strings.Split(key, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("rate entry %q: key must be SENDER:RECIPIENT:ROLE", item)
		}
		rateStr, agentStr, _ := strings.Cut(value, "/")
		rate, err := decimal.NewFromString(strings.TrimSpace(rateStr))
		if err != nil {
			return nil, fmt.Errorf("rate entry %q: %w", item, err)
		}
		agent := decimal.Zero
		if agentStr != "" {
			agent, err = decimal.NewFromString(strings.TrimSpace(agentStr))
			if err != nil {
				return nil, fmt.Errorf("rate entry %q: %w", item, err)
			}
		}
		if agent.GreaterThan(rate) || rate.IsNegative() || agent.IsNegative() {
			return nil, fmt.Errorf("rate entry %q: agent rate must be within [0, rate]", item)
		}
		base.Set(parts[0], parts[1], parts[2], Schedule{Rate: rate, AgentRate: agent})
	}
	return base, nil
}

func norm(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return wildcard
	}
	return s
}
