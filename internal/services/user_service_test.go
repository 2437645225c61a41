package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendflow/internal/apperrors"
	"sendflow/internal/models"
)

func TestUserService_RegisterAndAuthenticate(t *testing.T) {
	h := newHarness(t)
	users := NewUserService(h.store, zerolog.Nop())

	u, err := users.Register(h.ctx, &models.RegisterRequest{
		FullName: "Marc Essomba",
		Phone:    "+237650000004",
		Email:    "Marc@SendFlow.test",
		Password: "secret-pass",
		Country:  "cm",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, "marc@sendflow.test", u.Email)
	assert.Equal(t, "CM", u.Country)
	assert.True(t, u.Balance.IsZero())

	_, err = users.Register(h.ctx, &models.RegisterRequest{
		FullName: "Someone Else",
		Phone:    "+237650000004",
		Email:    "other@sendflow.test",
		Password: "secret-pass",
	})
	assert.ErrorIs(t, err, apperrors.ErrUserExists)

	got, err := users.Authenticate(h.ctx, &models.LoginRequest{Email: "marc@sendflow.test", Password: "secret-pass"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = users.Authenticate(h.ctx, &models.LoginRequest{Email: "marc@sendflow.test", Password: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = users.Authenticate(h.ctx, &models.LoginRequest{Email: "ghost@sendflow.test", Password: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	assert.NoError(t, users.VerifyPassword(h.ctx, u.ID, "secret-pass"))
	assert.ErrorIs(t, users.VerifyPassword(h.ctx, u.ID, ""), apperrors.ErrInvalidCredentials)
}

func TestUserService_FindRecipientExcludesCaller(t *testing.T) {
	h := newHarness(t)
	users := NewUserService(h.store, zerolog.Nop())
	caller := h.account("Awa", "+237650000001", models.RoleUser, "CM", "0")
	h.account("Marc", "+237650000004", models.RoleUser, "CM", "0")

	found, err := users.FindRecipient(h.ctx, caller, "+2376500")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Marc", found[0].FullName)

	found, err = users.FindRecipient(h.ctx, caller, "+2")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUserService_UpdateUserRole(t *testing.T) {
	h := newHarness(t)
	users := NewUserService(h.store, zerolog.Nop())
	admin := h.session(h.platform)
	user := h.account("Awa", "+237650000001", models.RoleUser, "CM", "0")

	assert.ErrorIs(t, users.UpdateUserRole(h.ctx, user, user.UserID, models.RoleAgent), apperrors.ErrForbidden)
	assert.Error(t, users.UpdateUserRole(h.ctx, admin, user.UserID, models.Role("owner")))
	assert.ErrorIs(t, users.UpdateUserRole(h.ctx, admin, 9999, models.RoleAgent), apperrors.ErrUserNotFound)

	require.NoError(t, users.UpdateUserRole(h.ctx, admin, user.UserID, models.RoleAgent))
	assert.Equal(t, models.RoleAgent, h.session(user.UserID).Role)
}

func TestAuthService_Tokens(t *testing.T) {
	auth := NewAuthService("test-secret", zerolog.Nop())
	user := &models.User{ID: 7, Email: "awa@sendflow.test", Phone: "+237650000001", Role: models.RoleAgent, Country: "CM"}

	token, err := auth.GenerateToken(user)
	require.NoError(t, err)
	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Session{UserID: 7, Role: models.RoleAgent, Country: "CM", Phone: "+237650000001", Email: "awa@sendflow.test"}, claims.Session())

	refresh, err := auth.GenerateRefreshToken(7)
	require.NoError(t, err)
	_, err = auth.ValidateToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	id, err := auth.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	_, err = auth.ValidateRefreshToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = NewAuthService("other-secret", zerolog.Nop()).ValidateToken(token)
	assert.Error(t, err)
}

func TestBalanceService_HistoryAndReconciliation(t *testing.T) {
	h := newHarness(t)
	balances := NewBalanceService(h.store, h.store, zerolog.Nop())
	a := h.account("Awa", "+237650000001", models.RoleUser, "CM", "100")
	mid := time.Now().UTC()

	_, err := h.mem.IncrementBalance(h.ctx, a.UserID, dec("-40"), "test")
	require.NoError(t, err)

	b, err := balances.GetBalance(h.ctx, a.UserID)
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(dec("60")))

	history, err := balances.GetBalanceHistory(h.ctx, a.UserID, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].ChangeAmount.Equal(dec("-40")))

	sum, err := balances.CalculateBalanceFromHistory(h.ctx, a.UserID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(dec("60")))

	at, err := balances.GetBalanceAtTime(h.ctx, a.UserID, mid.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	ok, err := balances.ReconcileBalance(h.ctx, a.UserID)
	require.NoError(t, err)
	assert.True(t, ok)
	mismatches, err := balances.ReconcileAll(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, mismatches)

	_, err = balances.GetBalance(h.ctx, 9999)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}
