package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/bankauth/internal/auth"
	"github.com/BradenHooton/bankauth/internal/lockout"
	"github.com/BradenHooton/bankauth/internal/models"
	pkgauth "github.com/BradenHooton/bankauth/pkg/auth"
	"github.com/jonboulle/clockwork"
)

// notifyTimeout bounds one lockout notification
const notifyTimeout = 10 * time.Second

// CredentialStore resolves a login name to its account
type CredentialStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// TokenIssuer mints access tokens for authenticated users
type TokenIssuer interface {
	GenerateAccessToken(userID, username string) (string, error)
}

// LoginService runs the banking login flow: account lookup, lockout check,
// credential verification and ledger update.
type LoginService struct {
	users    CredentialStore
	verifier pkgauth.Verifier
	ledger   *lockout.Ledger
	tokens   TokenIssuer
	clock    clockwork.Clock
	logger   *slog.Logger

	notifier LockoutNotifier
	timing   *auth.TimingDelay
	pending  sync.WaitGroup
}

// LoginServiceOption configures optional LoginService behavior
type LoginServiceOption func(*LoginService)

// WithLockoutNotifier sends a notification whenever an attempt locks an account
func WithLockoutNotifier(n LockoutNotifier) LoginServiceOption {
	return func(s *LoginService) {
		s.notifier = n
	}
}

// WithTimingDelay pads unsuccessful logins to a minimum response time
func WithTimingDelay(td *auth.TimingDelay) LoginServiceOption {
	return func(s *LoginService) {
		s.timing = td
	}
}

// NewLoginService creates a new LoginService
func NewLoginService(users CredentialStore, verifier pkgauth.Verifier, ledger *lockout.Ledger, tokens TokenIssuer, clock clockwork.Clock, logger *slog.Logger, opts ...LoginServiceOption) *LoginService {
	s := &LoginService{
		users:    users,
		verifier: verifier,
		ledger:   ledger,
		tokens:   tokens,
		clock:    clock,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates username with secret. Domain outcomes are returned
// as a models.LoginResult; the error is non-nil only for infrastructure
// failures, which leave the ledger untouched.
func (s *LoginService) Login(ctx context.Context, username, secret string) (models.LoginResult, error) {
	now := s.clock.Now()

	username = strings.TrimSpace(username)
	if username == "" {
		s.pad(ctx, now)
		return models.NoSuchAccount{}, nil
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: unknown username")
			s.pad(ctx, now)
			return models.NoSuchAccount{}, nil
		}
		s.logger.Error("failed to get user by username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	locked, err := s.ledger.Check(ctx, user.Username, now)
	if err != nil {
		s.logger.Error("failed to check login state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if locked != nil {
		s.logger.Info("login rejected: account locked", slog.String("user_id", user.ID))
		s.pad(ctx, now)
		return locked, nil
	}

	ok, err := s.verifier.Verify(user.PasswordHash, secret)
	if err != nil {
		s.logger.Error("failed to verify credentials", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result, err := s.ledger.RecordOutcome(ctx, user.Username, ok, now)
	if err != nil {
		s.logger.Error("failed to record login outcome", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	switch r := result.(type) {
	case models.LoginSuccess:
		token, err := s.tokens.GenerateAccessToken(user.ID, user.Username)
		if err != nil {
			s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.logger.Info("user logged in", slog.String("user_id", user.ID))
		return models.LoginSuccess{Profile: user.Profile(), AccessToken: token}, nil

	case models.LockedOut:
		if r.Triggered {
			s.logger.Warn("account locked after repeated failures", slog.String("user_id", user.ID))
			s.notifyLocked(ctx, user, now.Add(r.TimeRemaining))
		}

	case models.WrongPassword:
		s.logger.Info("login failed: wrong password",
			slog.String("user_id", user.ID),
			slog.Int("attempts_remaining", r.AttemptsRemaining))
	}

	s.pad(ctx, now)
	return result, nil
}

// Wait blocks until in-flight lockout notifications have finished
func (s *LoginService) Wait() {
	s.pending.Wait()
}

func (s *LoginService) pad(ctx context.Context, start time.Time) {
	if s.timing != nil {
		s.timing.WaitFrom(ctx, start, false)
	}
}

func (s *LoginService) notifyLocked(ctx context.Context, user *models.User, lockedUntil time.Time) {
	if s.notifier == nil {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyLocked(ctx, user, lockedUntil); err != nil {
			s.logger.Error("failed to send lockout notification", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}()
}

// LoginState returns the ledger entry for an account, or nil when it has no
// recorded failures. The account must exist.
func (s *LoginService) LoginState(ctx context.Context, username string) (*models.AccountLoginState, error) {
	user, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	state, err := s.ledger.State(ctx, user.Username)
	if err != nil {
		s.logger.Error("failed to read login state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return state, nil
}

// Unlock clears failures and any active lock for an account
func (s *LoginService) Unlock(ctx context.Context, username string) (models.LoginResult, error) {
	user, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	result, err := s.ledger.Reset(ctx, user.Username)
	if err != nil {
		s.logger.Error("failed to reset login state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("login attempts reset", slog.String("user_id", user.ID))
	return result, nil
}

func (s *LoginService) lookup(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user by username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}
