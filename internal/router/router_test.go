package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendflow/internal/fees"
	"sendflow/internal/models"
	"sendflow/internal/services"
	"sendflow/internal/store/memstore"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zerolog.Nop()
	mem := memstore.New()
	platform := mem.Seed(models.User{FullName: "Platform", Phone: "+0", Email: "platform@sendflow.test", Role: models.RoleAdmin}, decimal.Zero)

	deps := services.Deps{
		Store:             mem,
		Sagas:             services.NewSagaRunner(mem, mem, logger),
		PlatformAccountID: platform,
		Logger:            logger,
	}
	calc := fees.NewCalculator(fees.DefaultConfig())
	users := services.NewUserService(mem, logger)

	return SetupRouter(Services{
		Auth:               services.NewAuthService("router-test-secret", logger),
		Users:              users,
		Balances:           services.NewBalanceService(mem, mem, logger),
		Transfers:          services.NewTransferService(deps, calc),
		Withdrawals:        services.NewWithdrawalService(deps, calc, services.NewLocalAttemptLimiter(0, 0)),
		WithdrawalRequests: services.NewWithdrawalRequestService(deps, calc, users, services.WithdrawalRequestOptions{}),
		Deposits:           services.NewDepositService(deps, calc),
	}, Options{RateLimitRPS: 1000, RateLimitBurst: 1000}, logger)
}

func do(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t)

	rec := do(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sendflow_http_requests_total")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestRouter(t)

	for _, path := range []string{"/api/v1/users/me", "/api/v1/balances/current", "/api/v1/transfers", "/api/v1/withdrawals"} {
		rec := do(h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRegisterThenUseToken(t *testing.T) {
	h := newTestRouter(t)

	rec := do(h, http.MethodPost, "/api/v1/auth/register",
		`{"full_name":"Binta","phone":"+237677777777","email":"binta@client.test","password":"pw-123456","country":"CM"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var auth models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	require.NotEmpty(t, auth.Token)

	rec = do(h, http.MethodGet, "/api/v1/users/me", "", auth.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "binta@client.test", me.Email)
	assert.Empty(t, me.PasswordHash)

	rec = do(h, http.MethodGet, "/api/v1/withdrawal-requests/pending", "", auth.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(h, http.MethodPost, "/api/v1/deposits", `{"recipient_id":1,"amount":"10"}`, auth.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodPut, "/api/v1/users/1/role", `{"role":"agent"}`, auth.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/notifications/stream", "", auth.Token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	h := newTestRouter(t)

	rec := do(h, http.MethodPost, "/api/v1/auth/register",
		`{"full_name":"Chidi","phone":"+237688888888","email":"chidi@client.test","password":"pw-123456","country":"CM"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var auth models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))

	rec = do(h, http.MethodGet, "/api/v1/users/me", "", auth.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
