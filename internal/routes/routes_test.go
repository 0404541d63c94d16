package routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/bankauth/internal/auth"
	"github.com/BradenHooton/bankauth/internal/handlers"
	"github.com/BradenHooton/bankauth/internal/middleware"
	"github.com/BradenHooton/bankauth/internal/models"
	pkghttp "github.com/BradenHooton/bankauth/pkg/http"
	pkglogger "github.com/BradenHooton/bankauth/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleRepo struct {
	roles map[string]string
}

func (r *roleRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	role, ok := r.roles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.User{ID: id, Role: role}, nil
}

type testServer struct {
	router http.Handler
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tokens := auth.NewTokenManager("routes-test-secret-0123456789", 15*time.Minute, clockwork.NewRealClock())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := pkghttp.NewClientIPResolver(nil)

	loginService := &handlers.MockLoginService{
		LoginFunc: func(ctx context.Context, username, secret string) (models.LoginResult, error) {
			return models.NoSuchAccount{}, nil
		},
		LoginStateFunc: func(ctx context.Context, username string) (*models.AccountLoginState, error) {
			return nil, nil
		},
		UnlockFunc: func(ctx context.Context, username string) (models.LoginResult, error) {
			return models.AttemptsReset{}, nil
		},
	}
	userService := &handlers.MockUserService{
		GetUserByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Username: "alice", Role: "user"}, nil
		},
	}

	router := chi.NewRouter()
	RegisterRoutes(
		router,
		handlers.NewUserHandler(userService),
		handlers.NewAuthHandler(loginService, resolver, pkglogger.NewAuditLogger(logger), tokens.AccessTokenExpiry()),
		tokens,
		&roleRepo{roles: map[string]string{"user-1": "user", "admin-1": "admin"}},
		resolver,
		middleware.RateLimitConfig{RequestsPerMinute: 100},
	)

	return &testServer{router: router, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:5000"
	if userID != "" {
		token, err := s.tokens.GenerateAccessToken(userID, userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestRoutes_BankingLoginIsPublic(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/banking/login", `{"username":"ghost","password":"x"}`, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_username")
}

func TestRoutes_ProtectedRequireToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/users/user-1", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/users/user-1", "", "user-1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_AdminRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		userID string
		want   int
	}{
		{"login state as user", http.MethodGet, "/admin/accounts/alice/login-state", "user-1", http.StatusForbidden},
		{"login state as admin", http.MethodGet, "/admin/accounts/alice/login-state", "admin-1", http.StatusOK},
		{"unlock as user", http.MethodPost, "/admin/accounts/alice/unlock", "user-1", http.StatusForbidden},
		{"unlock as admin", http.MethodPost, "/admin/accounts/alice/unlock", "admin-1", http.StatusOK},
		{"unlock unknown caller", http.MethodPost, "/admin/accounts/alice/unlock", "ghost-1", http.StatusUnauthorized},
		{"list users as user", http.MethodGet, "/users", "user-1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, "", tt.userID)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
