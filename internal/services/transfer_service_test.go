package services

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendflow/internal/apperrors"
	"sendflow/internal/models"
)

var claimCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestProcessTransfer_RegisteredRecipient(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "10000")
	recipient := h.account("Marc", "+237650000004", models.RoleUser, "CM", "0")
	before := h.total()

	res, err := svc.ProcessTransfer(h.ctx, sender, recipient.Phone, dec("1000"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Transfer)
	assert.Nil(t, res.PendingTransfer)
	assert.Equal(t, models.TransferCompleted, res.Transfer.Status)
	assert.True(t, res.Transfer.Fee.Equal(dec("65")))

	h.assertBalance(sender.UserID, "8935")
	h.assertBalance(recipient.UserID, "1000")
	h.assertBalance(h.platform, "65")
	assert.True(t, before.Equal(h.total()))

	listed, err := svc.ListTransfers(h.ctx, recipient, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, res.Transfer.ID, listed[0].ID)
}

func TestProcessTransfer_AgentKeepsCommission(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	agent := h.account("Paul", "+237650000002", models.RoleAgent, "CM", "10000")
	recipient := h.account("Marc", "+237650000004", models.RoleUser, "CM", "0")

	res, err := svc.ProcessTransfer(h.ctx, agent, recipient.Email, dec("1000"))
	require.NoError(t, err)
	assert.True(t, res.Transfer.AgentCommission.Equal(dec("10")))

	h.assertBalance(agent.UserID, "8945")
	h.assertBalance(recipient.UserID, "1000")
	h.assertBalance(h.platform, "55")
}

func TestProcessTransfer_EmailIdentifierIgnoresCase(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "10000")
	recipient := h.account("Marc", "+237650000004", models.RoleUser, "CM", "0")

	res, err := svc.ProcessTransfer(h.ctx, sender, "  "+strings.ToUpper(recipient.Email)+" ", dec("1000"))
	require.NoError(t, err)
	require.NotNil(t, res.Transfer)
	assert.Nil(t, res.PendingTransfer)
	assert.Equal(t, recipient.Email, res.Transfer.RecipientIdentifier)
	h.assertBalance(recipient.UserID, "1000")

	_, err = svc.ProcessTransfer(h.ctx, sender, strings.ToUpper(sender.Email), dec("10"))
	assert.ErrorIs(t, err, apperrors.ErrSelfTransfer)
}

func TestProcessTransfer_UnknownRecipientHoldsPendingTransfer(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "10000")

	res, err := svc.ProcessTransfer(h.ctx, sender, "+237699999999", dec("1000"))
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Nil(t, res.Transfer)
	require.NotNil(t, res.PendingTransfer)
	assert.Regexp(t, claimCodePattern, res.ClaimCode)
	assert.Equal(t, res.ClaimCode, res.PendingTransfer.ClaimCode)
	assert.Equal(t, models.PendingTransferPending, res.PendingTransfer.Status)

	h.assertBalance(sender.UserID, "8935")
	h.assertBalance(h.platform, "65")

	event, ok := h.published.find("transfer.pending")
	require.True(t, ok)
	payload, ok := event.Payload.(*models.PendingTransfer)
	require.True(t, ok)
	assert.Empty(t, payload.ClaimCode)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "claim_code")
	assert.Equal(t, res.ClaimCode, res.PendingTransfer.ClaimCode)
}

func TestClaimPendingTransfer(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "10000")

	res, err := svc.ProcessTransfer(h.ctx, sender, "+237699999999", dec("1000"))
	require.NoError(t, err)

	stranger := h.account("Eric", "+237650000003", models.RoleUser, "CM", "0")
	_, err = svc.ClaimPendingTransfer(h.ctx, stranger, res.ClaimCode)
	assert.ErrorIs(t, err, apperrors.ErrClaimantMismatch)

	newcomer := h.account("Nina", "+237699999999", models.RoleUser, "CM", "0")
	claimed, err := svc.ClaimPendingTransfer(h.ctx, newcomer, " "+res.ClaimCode+" ")
	require.NoError(t, err)
	assert.Equal(t, models.PendingTransferClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, newcomer.UserID, *claimed.ClaimedBy)
	h.assertBalance(newcomer.UserID, "1000")

	_, err = svc.ClaimPendingTransfer(h.ctx, newcomer, res.ClaimCode)
	assert.ErrorIs(t, err, apperrors.ErrClaimCodeNotFound)
	h.assertBalance(newcomer.UserID, "1000")

	_, err = svc.CancelPendingTransfer(h.ctx, sender, res.PendingTransfer.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestClaimPendingTransfer_ReopensWhenCreditFails(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "10000")

	res, err := svc.ProcessTransfer(h.ctx, sender, "+237699999999", dec("1000"))
	require.NoError(t, err)
	newcomer := h.account("Nina", "+237699999999", models.RoleUser, "CM", "0")

	h.store.failWhen(func(accountID int, _ decimal.Decimal, _ string) bool {
		return accountID == newcomer.UserID
	})
	_, err = svc.ClaimPendingTransfer(h.ctx, newcomer, res.ClaimCode)
	require.ErrorIs(t, err, errInjected)

	h.store.failWhen(nil)
	_, err = svc.ClaimPendingTransfer(h.ctx, newcomer, res.ClaimCode)
	require.NoError(t, err)
	h.assertBalance(newcomer.UserID, "1000")
}

func TestCancelPendingTransfer_RefundsAmountKeepsFee(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "10000")
	other := h.account("Eric", "+237650000003", models.RoleUser, "CM", "0")

	res, err := svc.ProcessTransfer(h.ctx, sender, "nobody@example.com", dec("1000"))
	require.NoError(t, err)

	_, err = svc.CancelPendingTransfer(h.ctx, other, res.PendingTransfer.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	cancelled, err := svc.CancelPendingTransfer(h.ctx, sender, res.PendingTransfer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingTransferCancelled, cancelled.Status)

	h.assertBalance(sender.UserID, "9935")
	h.assertBalance(h.platform, "65")

	_, err = svc.ClaimPendingTransfer(h.ctx, other, res.ClaimCode)
	assert.ErrorIs(t, err, apperrors.ErrClaimCodeNotFound)
	_, err = svc.CancelPendingTransfer(h.ctx, sender, "missing")
	assert.ErrorIs(t, err, apperrors.ErrTransferNotFound)
}

func TestExpirePendingTransfers(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "10000")

	_, err := svc.ProcessTransfer(h.ctx, sender, "+237699999999", dec("1000"))
	require.NoError(t, err)

	expired, err := svc.ExpirePendingTransfers(h.ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, expired)

	svc.now = func() time.Time { return time.Now().UTC().Add(96 * time.Hour) }
	expired, err = svc.ExpirePendingTransfers(h.ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	h.assertBalance(sender.UserID, "9935")

	expired, err = svc.ExpirePendingTransfers(h.ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestProcessTransfer_PendingPathCompensates(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "10000")

	h.store.failWhen(func(accountID int, _ decimal.Decimal, _ string) bool {
		return accountID == h.platform
	})
	_, err := svc.ProcessTransfer(h.ctx, sender, "+237699999999", dec("1000"))
	require.ErrorIs(t, err, errInjected)

	h.assertBalance(sender.UserID, "10000")
	h.assertBalance(h.platform, "0")

	stale, err := h.mem.ListPendingTransfersBefore(h.ctx, farFuture, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestProcessTransfer_Validation(t *testing.T) {
	h := newHarness(t)
	svc := NewTransferService(h.deps, h.calc())
	sender := h.account("Awa", "+237650000001", models.RoleUser, "CM", "1000")
	recipient := h.account("Marc", "+237650000004", models.RoleUser, "CM", "0")

	tests := []struct {
		name      string
		recipient string
		amount    string
		want      error
	}{
		{"zero amount", recipient.Phone, "0", apperrors.ErrInvalidAmount},
		{"negative amount", recipient.Phone, "-5", apperrors.ErrInvalidAmount},
		{"missing recipient", "  ", "10", apperrors.ErrMissingRecipient},
		{"self by phone", sender.Phone, "10", apperrors.ErrSelfTransfer},
		{"self by email", sender.Email, "10", apperrors.ErrSelfTransfer},
		{"fee not covered", recipient.Phone, "1000", apperrors.ErrInsufficientBalance},
		{"unknown recipient without funds", "+237688888888", "1000", apperrors.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ProcessTransfer(h.ctx, sender, tt.recipient, dec(tt.amount))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	h.assertBalance(sender.UserID, "1000")
	h.assertBalance(recipient.UserID, "0")
	h.assertBalance(h.platform, "0")
}

func TestNewClaimCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NewClaimCode()
		require.NoError(t, err)
		assert.Regexp(t, claimCodePattern, code)
	}
}
