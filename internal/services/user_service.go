package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BradenHooton/bankauth/internal/lockout"
	"github.com/BradenHooton/bankauth/internal/models"
	pkgauth "github.com/BradenHooton/bankauth/pkg/auth"
	pkglogger "github.com/BradenHooton/bankauth/pkg/logger"
	"github.com/jonboulle/clockwork"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, id string, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

// UserService handles user business logic
type UserService struct {
	repo     UserRepository
	verifier pkgauth.Verifier
	logger   *slog.Logger

	ledger *lockout.Ledger
	clock  clockwork.Clock
}

// UserServiceOption configures optional UserService behavior
type UserServiceOption func(*UserService)

// WithPasswordLockout makes ChangePassword count wrong current passwords
// against the same lockout ledger as the banking login
func WithPasswordLockout(ledger *lockout.Ledger, clock clockwork.Clock) UserServiceOption {
	return func(s *UserService) {
		s.ledger = ledger
		s.clock = clock
	}
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, verifier pkgauth.Verifier, logger *slog.Logger, opts ...UserServiceOption) *UserService {
	s := &UserService{
		repo:     repo,
		verifier: verifier,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// ListUsers retrieves a list of users with pagination
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return users, nil
}

// EmailIsRegistered reports whether an account already uses email
func (s *UserService) EmailIsRegistered(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}

	s.logger.Error("failed to look up email", slog.Any("error", err))
	return false, models.ErrInternalServer
}

// CreateUser registers a new account. Username and email must both be unused.
func (s *UserService) CreateUser(ctx context.Context, user *models.User, password string) (*models.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	user.Email = normalizeEmail(user.Email)

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	registered, err := s.EmailIsRegistered(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if registered {
		s.logger.Info("email already registered", slog.String("email", pkglogger.SanitizedEmail(user.Email)))
		return nil, models.ErrConflict
	}

	if _, err := s.repo.GetByUsername(ctx, user.Username); err == nil {
		s.logger.Info("username already registered", slog.String("username", pkglogger.SanitizedUsername(user.Username)))
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hash, err := s.verifier.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	user.PasswordHash = hash

	createdUser, err := s.repo.Create(ctx, user)
	if err != nil {
		// a concurrent registration can still hit the unique constraint
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user created", slog.String("user_id", createdUser.ID))
	return createdUser, nil
}

// UpdateUser applies the non-empty fields of updates to an existing user
func (s *UserService) UpdateUser(ctx context.Context, id string, updates *models.User) (*models.User, error) {
	existingUser, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(updates.Name); name != "" {
		existingUser.Name = name
	}
	if updates.Role != "" {
		existingUser.Role = updates.Role
	}

	if email := normalizeEmail(updates.Email); email != "" && email != existingUser.Email {
		other, err := s.repo.GetByEmail(ctx, email)
		switch {
		case err == nil && other.ID != id:
			return nil, models.ErrConflict
		case err != nil && !errors.Is(err, models.ErrNotFound):
			s.logger.Error("failed to look up email", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		existingUser.Email = email
	}

	updatedUser, err := s.repo.Update(ctx, id, existingUser)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to update user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user updated", slog.String("user_id", id))
	return updatedUser, nil
}

// ChangePassword replaces the password after verifying the current one
func (s *UserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.checkLockout(ctx, user); err != nil {
		return err
	}

	ok, err := s.verifier.Verify(user.PasswordHash, currentPassword)
	if err != nil {
		s.logger.Error("failed to verify current password", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := s.recordAttempt(ctx, user, ok); err != nil {
		return err
	}
	if !ok {
		return models.ErrUnauthorized
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.verifier.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to update password", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("password changed", slog.String("user_id", id))
	return nil
}

// DeleteUser deletes a user
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user deleted", slog.String("user_id", id))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkLockout refuses the password check while the account is locked
func (s *UserService) checkLockout(ctx context.Context, user *models.User) error {
	if s.ledger == nil {
		return nil
	}

	result, err := s.ledger.Check(ctx, user.Username, s.clock.Now())
	if err != nil {
		s.logger.Error("lockout check failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if locked, ok := result.(models.LockedOut); ok {
		return &models.AccountLockedError{TimeRemaining: locked.TimeRemaining}
	}
	return nil
}

// recordAttempt feeds the current-password check into the ledger. A wrong
// password that triggers the lock is reported as AccountLockedError.
func (s *UserService) recordAttempt(ctx context.Context, user *models.User, succeeded bool) error {
	if s.ledger == nil {
		return nil
	}

	result, err := s.ledger.RecordOutcome(ctx, user.Username, succeeded, s.clock.Now())
	if err != nil {
		s.logger.Error("failed to record password check", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if locked, ok := result.(models.LockedOut); ok {
		s.logger.Warn("account locked by password change attempts",
			slog.String("username", pkglogger.SanitizedUsername(user.Username)))
		return &models.AccountLockedError{TimeRemaining: locked.TimeRemaining}
	}
	return nil
}
