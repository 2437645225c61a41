package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendflow/internal/apperrors"
	"sendflow/internal/models"
)

const testPassword = "correct horse battery"

type requestFixture struct {
	*harness
	svc   *WithdrawalRequestService
	user  models.Session
	agent models.Session
}

func newRequestFixture(t *testing.T, opts WithdrawalRequestOptions) *requestFixture {
	h := newHarness(t)
	users := NewUserService(h.store, h.deps.Logger)

	u, err := users.Register(h.ctx, &models.RegisterRequest{
		FullName: "Awa Ndiaye",
		Phone:    "+237650000001",
		Email:    "awa@sendflow.test",
		Password: testPassword,
		Country:  "cm",
	})
	require.NoError(t, err)
	_, err = h.mem.IncrementBalance(h.ctx, u.ID, dec("10000"), "seed")
	require.NoError(t, err)

	return &requestFixture{
		harness: h,
		svc:     NewWithdrawalRequestService(h.deps, h.calc(), users, opts),
		user:    h.session(u.ID),
		agent:   h.account("Paul", "+237650000002", models.RoleAgent, "CM", "0"),
	}
}

func TestApproveRequest_WithPassword(t *testing.T) {
	f := newRequestFixture(t, WithdrawalRequestOptions{})
	before := f.total()

	r, err := f.svc.CreateRequest(f.ctx, f.agent, f.user.UserID, dec("5000"), f.user.Phone)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, r.Status)
	f.assertBalance(f.user.UserID, "10000")

	pending, err := f.svc.ListPendingForUser(f.ctx, f.user)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)

	done, err := f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, done.Status)
	assert.True(t, done.Fee.Equal(dec("75")))

	f.assertBalance(f.user.UserID, "5000")
	f.assertBalance(f.agent.UserID, "4950")
	f.assertBalance(f.platform, "50")
	assert.True(t, before.Equal(f.total()))

	pending, err = f.svc.ListPendingForUser(f.ctx, f.user)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Password: testPassword})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestApproveRequest_Confirmation(t *testing.T) {
	f := newRequestFixture(t, WithdrawalRequestOptions{})
	r, err := f.svc.CreateRequest(f.ctx, f.agent, f.user.UserID, dec("5000"), f.user.Phone)
	require.NoError(t, err)

	_, err = f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Password: "wrong"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{})
	assert.ErrorIs(t, err, apperrors.ErrConfirmationRequired)
	_, err = f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Biometric: true})
	assert.ErrorIs(t, err, apperrors.ErrConfirmationRequired)

	stored, err := f.mem.GetWithdrawalRequest(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	f.assertBalance(f.user.UserID, "10000")
}

func TestApproveRequest_BiometricWhenEnabled(t *testing.T) {
	f := newRequestFixture(t, WithdrawalRequestOptions{BiometricEnabled: true})
	r, err := f.svc.CreateRequest(f.ctx, f.agent, f.user.UserID, dec("1000"), f.user.Phone)
	require.NoError(t, err)

	_, err = f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Biometric: true})
	require.NoError(t, err)
	f.assertBalance(f.user.UserID, "9000")
}

func TestApproveRequest_FeeFree(t *testing.T) {
	f := newRequestFixture(t, WithdrawalRequestOptions{FeeFree: true})
	r, err := f.svc.CreateRequest(f.ctx, f.agent, f.user.UserID, dec("5000"), f.user.Phone)
	require.NoError(t, err)

	done, err := f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Password: testPassword})
	require.NoError(t, err)
	assert.True(t, done.Fee.IsZero())

	f.assertBalance(f.user.UserID, "5000")
	f.assertBalance(f.agent.UserID, "5000")
	f.assertBalance(f.platform, "0")
}

func TestApproveRequest_RejectsWhenFundsGone(t *testing.T) {
	f := newRequestFixture(t, WithdrawalRequestOptions{})
	r, err := f.svc.CreateRequest(f.ctx, f.agent, f.user.UserID, dec("8000"), f.user.Phone)
	require.NoError(t, err)

	_, err = f.mem.IncrementBalance(f.ctx, f.user.UserID, dec("-5000"), "test")
	require.NoError(t, err)

	_, err = f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Password: testPassword})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

	stored, err := f.mem.GetWithdrawalRequest(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, stored.Status)
	f.assertBalance(f.user.UserID, "5000")
	f.assertBalance(f.agent.UserID, "0")
}

func TestApproveRequest_CompensatesFailedSettlement(t *testing.T) {
	f := newRequestFixture(t, WithdrawalRequestOptions{})
	r, err := f.svc.CreateRequest(f.ctx, f.agent, f.user.UserID, dec("5000"), f.user.Phone)
	require.NoError(t, err)

	f.store.failWhen(func(accountID int, delta decimal.Decimal, _ string) bool {
		return accountID == f.agent.UserID && delta.IsPositive()
	})
	_, err = f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Password: testPassword})
	require.ErrorIs(t, err, errInjected)

	f.assertBalance(f.user.UserID, "10000")
	f.assertBalance(f.agent.UserID, "0")
	stored, err := f.mem.GetWithdrawalRequest(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, stored.Status)
}

func TestRejectRequest(t *testing.T) {
	f := newRequestFixture(t, WithdrawalRequestOptions{})
	stranger := f.account("Eric", "+237650000003", models.RoleUser, "CM", "0")
	r, err := f.svc.CreateRequest(f.ctx, f.agent, f.user.UserID, dec("5000"), f.user.Phone)
	require.NoError(t, err)

	_, err = f.svc.RejectRequest(f.ctx, stranger, r.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	rejected, err := f.svc.RejectRequest(f.ctx, f.user, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)

	_, err = f.svc.ApproveRequest(f.ctx, f.user, r.ID, models.Confirmation{Password: testPassword})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = f.svc.RejectRequest(f.ctx, f.user, "missing")
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)
	f.assertBalance(f.user.UserID, "10000")
}

func TestCreateRequest_Rejections(t *testing.T) {
	f := newRequestFixture(t, WithdrawalRequestOptions{})
	foreignAgent := f.account("Kwame", "+233200000002", models.RoleAgent, "GH", "0")

	tests := []struct {
		name   string
		actor  models.Session
		userID int
		amount string
		phone  string
		want   error
	}{
		{"not an agent", f.user, f.agent.UserID, "100", "+237650000002", apperrors.ErrNotAgent},
		{"zero amount", f.agent, f.user.UserID, "0", f.user.Phone, apperrors.ErrInvalidAmount},
		{"missing phone", f.agent, f.user.UserID, "100", "", apperrors.ErrMissingPhone},
		{"unknown user", f.agent, 9999, "100", f.user.Phone, apperrors.ErrUserNotFound},
		{"own account", f.agent, f.agent.UserID, "100", f.agent.Phone, apperrors.ErrSelfConfirmation},
		{"different country", foreignAgent, f.user.UserID, "100", f.user.Phone, apperrors.ErrCountryMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateRequest(f.ctx, tt.actor, tt.userID, dec(tt.amount), tt.phone)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
