package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bankauth/internal/handlers"
	"github.com/BradenHooton/bankauth/internal/models"
	pkghttp "github.com/BradenHooton/bankauth/pkg/http"
	pkglogger "github.com/BradenHooton/bankauth/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthHandler(svc handlers.LoginService) *handlers.AuthHandler {
	audit := pkglogger.NewAuditLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return handlers.NewAuthHandler(svc, pkghttp.NewClientIPResolver(nil), audit, 15*time.Minute)
}

func loginWith(result models.LoginResult, err error) *handlers.MockLoginService {
	return &handlers.MockLoginService{
		LoginFunc: func(ctx context.Context, username, secret string) (models.LoginResult, error) {
			return result, err
		},
	}
}

func TestBankingLogin_Success(t *testing.T) {
	profile := &models.Profile{ID: "u-1", Username: "alice", Email: "alice@example.com", Name: "Alice"}
	h := newAuthHandler(loginWith(models.LoginSuccess{Profile: profile, AccessToken: "jwt"}, nil))

	w := httptest.NewRecorder()
	h.BankingLogin(w, newLoginRequest(t, "alice", "secret-pass1"))

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "jwt", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, "alice", resp.User.Username)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestBankingLogin_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		result     models.LoginResult
		wantStatus int
		wantError  string
		check      func(t *testing.T, w *httptest.ResponseRecorder, resp pkghttp.ErrorResponse)
	}{
		{
			name:       "unknown username",
			result:     models.NoSuchAccount{},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_username",
		},
		{
			name:       "wrong password",
			result:     models.WrongPassword{AttemptsRemaining: 1},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_password",
			check: func(t *testing.T, w *httptest.ResponseRecorder, resp pkghttp.ErrorResponse) {
				require.NotNil(t, resp.AttemptsRemaining)
				assert.Equal(t, 1, *resp.AttemptsRemaining)
			},
		},
		{
			name:       "locked out",
			result:     models.LockedOut{TimeRemaining: 6*time.Minute + 30*time.Second},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "account_locked",
			check: func(t *testing.T, w *httptest.ResponseRecorder, resp pkghttp.ErrorResponse) {
				require.NotNil(t, resp.RetryAfterMinutes)
				assert.Equal(t, 7, *resp.RetryAfterMinutes)
				assert.Equal(t, "390", w.Header().Get("Retry-After"))
			},
		},
		{
			name:       "attempts reset",
			result:     models.AttemptsReset{},
			wantStatus: http.StatusUnauthorized,
			wantError:  "attempts_reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHandler(loginWith(tt.result, nil))

			w := httptest.NewRecorder()
			h.BankingLogin(w, newLoginRequest(t, "alice", "secret-pass1"))

			resp := handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantError)
			if tt.check != nil {
				tt.check(t, w, resp)
			}
		})
	}
}

func TestBankingLogin_BadRequests(t *testing.T) {
	called := false
	h := newAuthHandler(&handlers.MockLoginService{
		LoginFunc: func(ctx context.Context, username, secret string) (models.LoginResult, error) {
			called = true
			return models.NoSuchAccount{}, nil
		},
	})

	w := httptest.NewRecorder()
	h.BankingLogin(w, handlers.NewTestRequest(t, http.MethodPost, "/banking/login", map[string]string{"username": "alice"}))
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/banking/login", nil)
	h.BankingLogin(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")

	assert.False(t, called)
}

func TestBankingLogin_InfrastructureError(t *testing.T) {
	h := newAuthHandler(loginWith(nil, models.ErrInternalServer))

	w := httptest.NewRecorder()
	h.BankingLogin(w, newLoginRequest(t, "alice", "secret-pass1"))

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestLoginState(t *testing.T) {
	windowStart := time.Date(2024, 3, 1, 9, 2, 0, 0, time.UTC)
	h := newAuthHandler(&handlers.MockLoginService{
		LoginStateFunc: func(ctx context.Context, username string) (*models.AccountLoginState, error) {
			switch username {
			case "alice":
				return &models.AccountLoginState{
					Username:     "alice",
					FailureCount: 3,
					WindowStart:  windowStart,
					Status:       models.LoginStatusLocked,
				}, nil
			case "bob":
				return nil, nil
			default:
				return nil, models.ErrNotFound
			}
		},
	})

	req := handlers.WithURLParams(httptest.NewRequest(http.MethodGet, "/admin/accounts/alice/login-state", nil),
		map[string]string{"username": "alice"})
	w := httptest.NewRecorder()
	h.LoginState(w, req)

	var resp handlers.LoginStateResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "locked", resp.Status)
	assert.Equal(t, 3, resp.FailureCount)
	require.NotNil(t, resp.WindowStart)
	assert.True(t, windowStart.Equal(*resp.WindowStart))

	req = handlers.WithURLParams(httptest.NewRequest(http.MethodGet, "/admin/accounts/bob/login-state", nil),
		map[string]string{"username": "bob"})
	w = httptest.NewRecorder()
	h.LoginState(w, req)

	resp = handlers.LoginStateResponse{}
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "active", resp.Status)
	assert.Zero(t, resp.FailureCount)
	assert.Nil(t, resp.WindowStart)

	req = handlers.WithURLParams(httptest.NewRequest(http.MethodGet, "/admin/accounts/ghost/login-state", nil),
		map[string]string{"username": "ghost"})
	w = httptest.NewRecorder()
	h.LoginState(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestUnlock(t *testing.T) {
	h := newAuthHandler(&handlers.MockLoginService{
		UnlockFunc: func(ctx context.Context, username string) (models.LoginResult, error) {
			if username == "ghost" {
				return nil, models.ErrNotFound
			}
			return models.AttemptsReset{}, nil
		},
	})

	req := handlers.WithURLParams(httptest.NewRequest(http.MethodPost, "/admin/accounts/alice/unlock", nil),
		map[string]string{"username": "alice"})
	req = handlers.WithAuthContext(req, "admin-1", "root")
	w := httptest.NewRecorder()
	h.Unlock(w, req)

	var resp handlers.UnlockResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "attempts_reset", resp.Result)

	req = handlers.WithURLParams(httptest.NewRequest(http.MethodPost, "/admin/accounts/ghost/unlock", nil),
		map[string]string{"username": "ghost"})
	w = httptest.NewRecorder()
	h.Unlock(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")

	req = handlers.WithURLParams(httptest.NewRequest(http.MethodPost, "/admin/accounts/x/unlock", nil),
		map[string]string{"username": "x"})
	w = httptest.NewRecorder()
	newAuthHandler(&handlers.MockLoginService{
		UnlockFunc: func(ctx context.Context, username string) (models.LoginResult, error) {
			return nil, errors.New("boom")
		},
	}).Unlock(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func newLoginRequest(t *testing.T, username, password string) *http.Request {
	return handlers.NewTestRequest(t, http.MethodPost, "/banking/login", handlers.LoginRequest{
		Username: username,
		Password: password,
	})
}
