package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bankauth/internal/auth"
	"github.com/BradenHooton/bankauth/internal/models"
	pkghttp "github.com/BradenHooton/bankauth/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, username string) *http.Request {
	claims := &models.TokenClaims{
		UserID:   userID,
		Username: username,
		Type:     "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParams sets chi route parameters on a request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockLoginService implements LoginService for testing
type MockLoginService struct {
	LoginFunc      func(ctx context.Context, username, secret string) (models.LoginResult, error)
	LoginStateFunc func(ctx context.Context, username string) (*models.AccountLoginState, error)
	UnlockFunc     func(ctx context.Context, username string) (models.LoginResult, error)
}

func (m *MockLoginService) Login(ctx context.Context, username, secret string) (models.LoginResult, error) {
	if m.LoginFunc == nil {
		return models.NoSuchAccount{}, nil
	}
	return m.LoginFunc(ctx, username, secret)
}

func (m *MockLoginService) LoginState(ctx context.Context, username string) (*models.AccountLoginState, error) {
	if m.LoginStateFunc == nil {
		return nil, nil
	}
	return m.LoginStateFunc(ctx, username)
}

func (m *MockLoginService) Unlock(ctx context.Context, username string) (models.LoginResult, error) {
	if m.UnlockFunc == nil {
		return models.AttemptsReset{}, nil
	}
	return m.UnlockFunc(ctx, username)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	ListUsersFunc      func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateUserFunc     func(ctx context.Context, user *models.User, password string) (*models.User, error)
	UpdateUserFunc     func(ctx context.Context, id string, user *models.User) (*models.User, error)
	ChangePasswordFunc func(ctx context.Context, id, currentPassword, newPassword string) error
	DeleteUserFunc     func(ctx context.Context, id string) error
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserByIDFunc(ctx, id)
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *MockUserService) CreateUser(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateUserFunc(ctx, user, password)
}

func (m *MockUserService) UpdateUser(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateUserFunc(ctx, id, user)
}

func (m *MockUserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, id, currentPassword, newPassword)
}

func (m *MockUserService) DeleteUser(ctx context.Context, id string) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(ctx, id)
}
