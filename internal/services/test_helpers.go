package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/bankauth/internal/models"
	pkgauth "github.com/BradenHooton/bankauth/pkg/auth"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByUsernameFunc  func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	ListFunc           func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc         func(ctx context.Context, id string, user *models.User) (*models.User, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash string) error
	DeleteFunc         func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// CountingVerifier wraps a Verifier and counts Verify calls
type CountingVerifier struct {
	pkgauth.Verifier
	calls atomic.Int64
}

func (c *CountingVerifier) Verify(storedHash, secret string) (bool, error) {
	c.calls.Add(1)
	return c.Verifier.Verify(storedHash, secret)
}

// Calls returns how many times Verify ran
func (c *CountingVerifier) Calls() int64 {
	return c.calls.Load()
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	GenerateAccessTokenFunc func(userID, username string) (string, error)
}

func (m *MockTokenIssuer) GenerateAccessToken(userID, username string) (string, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(userID, username)
	}
	return "token-" + userID, nil
}

// RecordingNotifier implements LockoutNotifier and keeps every notification
type RecordingNotifier struct {
	mu    sync.Mutex
	Err   error
	Sent  []string // usernames
	Until []time.Time
}

func (r *RecordingNotifier) NotifyLocked(ctx context.Context, user *models.User, lockedUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Sent = append(r.Sent, user.Username)
	r.Until = append(r.Until, lockedUntil)
	return r.Err
}

// Count returns the number of notifications received
func (r *RecordingNotifier) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sent)
}
