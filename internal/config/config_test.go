package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendflow/internal/models"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 1, cfg.PlatformAccountID)
	assert.Equal(t, 72*time.Hour, cfg.PendingTransferTTL)
	assert.Equal(t, int32(2), cfg.Fees.Scale)
	assert.True(t, cfg.Fees.Withdrawal.Rate.Equal(decimal.RequireFromString("0.015")))
	assert.False(t, cfg.AgentRequestFeeFree)

	s := cfg.Fees.Transfers.Lookup("CM", "CM", models.RoleUser)
	assert.True(t, s.Rate.Equal(decimal.RequireFromString("0.065")))
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PORT", "9090")
	t.Setenv("WITHDRAWAL_FEE_RATE", "0.02")
	t.Setenv("AGENT_REQUEST_FEE_FREE", "true")
	t.Setenv("CODE_ATTEMPT_WINDOW", "5m")
	t.Setenv("TRANSFER_FEE_TABLE", "CM:SN:user=0.08/0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.Fees.Withdrawal.Rate.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, cfg.AgentRequestFeeFree)
	assert.Equal(t, 5*time.Minute, cfg.CodeAttemptWindow)

	s := cfg.Fees.Transfers.Lookup("CM", "SN", models.RoleUser)
	assert.True(t, s.Rate.Equal(decimal.RequireFromString("0.08")))
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad int", "PLATFORM_ACCOUNT_ID", "one"},
		{"bad duration", "PENDING_TRANSFER_TTL", "3 days"},
		{"negative rate", "WITHDRAWAL_FEE_RATE", "-0.1"},
		{"unknown driver", "STORE_DRIVER", "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", "memory")
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRequiresDSNForMySQL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
