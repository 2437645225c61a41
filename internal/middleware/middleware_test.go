package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"sendflow/internal/models"
	"sendflow/internal/services"
)

type stubValidator struct {
	claims *services.Claims
	err    error
}

func (v stubValidator) ValidateToken(string) (*services.Claims, error) {
	return v.claims, v.err
}

func sessionEcho(t *testing.T, want models.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := GetSession(r)
		assert.True(t, ok)
		assert.Equal(t, want, got)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthentication(t *testing.T) {
	claims := &services.Claims{UserID: 7, Role: models.RoleAgent, Country: "CM", Phone: "+237611111111"}

	tests := []struct {
		name      string
		header    string
		validator stubValidator
		want      int
	}{
		{"missing header", "", stubValidator{claims: claims}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubValidator{claims: claims}, http.StatusUnauthorized},
		{"invalid token", "Bearer abc", stubValidator{err: errors.New("expired")}, http.StatusUnauthorized},
		{"valid token", "Bearer abc", stubValidator{claims: claims}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Authentication(tt.validator, zerolog.Nop())(sessionEcho(t, claims.Session()))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireRole(models.RoleAdmin)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, WithSession(httptest.NewRequest(http.MethodGet, "/", nil), models.Session{UserID: 1, Role: models.RoleAdmin}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, WithSession(httptest.NewRequest(http.MethodGet, "/", nil), models.Session{UserID: 2, Role: models.RoleUser}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := NewRateLimiter(0.001, 1).Middleware()(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
}

func TestErrorHandlingRecoversPanics(t *testing.T) {
	h := ErrorHandling(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestRequestValidationRequiresJSONBodies(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequestValidation()(ok)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLoggingEchoesRequestID(t *testing.T) {
	h := RequestLogging(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-1", r.Context().Value(RequestIDKey))
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}
