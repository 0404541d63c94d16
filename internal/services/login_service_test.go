package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/bankauth/internal/lockout"
	"github.com/BradenHooton/bankauth/internal/models"
	"github.com/BradenHooton/bankauth/internal/services"
	pkgauth "github.com/BradenHooton/bankauth/pkg/auth"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const (
	alicePassword = "correct-horse1"
	bobPassword   = "battery-staple2"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type loginFixture struct {
	svc      *services.LoginService
	clock    *clockwork.FakeClock
	verifier *services.CountingVerifier
	notifier *services.RecordingNotifier
	ledger   *lockout.Ledger
	repo     *services.MockUserRepository
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()

	bcryptVerifier := pkgauth.NewBcryptVerifier(bcrypt.MinCost)
	accounts := map[string]*models.User{}
	for id, creds := range map[string][2]string{
		"u-alice": {"alice", alicePassword},
		"u-bob":   {"bob", bobPassword},
	} {
		hash, err := bcryptVerifier.Hash(creds[1])
		require.NoError(t, err)
		accounts[creds[0]] = &models.User{
			ID:           id,
			Username:     creds[0],
			Email:        creds[0] + "@example.com",
			Name:         creds[0],
			PasswordHash: hash,
			Role:         "user",
		}
	}

	repo := &services.MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			if u, ok := accounts[username]; ok {
				copied := *u
				return &copied, nil
			}
			return nil, models.ErrNotFound
		},
	}

	ledger, err := lockout.NewLedger(lockout.NewMemoryStore(), lockout.DefaultPolicy(), discardLogger())
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(epoch)
	verifier := &services.CountingVerifier{Verifier: bcryptVerifier}
	notifier := &services.RecordingNotifier{}

	svc := services.NewLoginService(repo, verifier, ledger, &services.MockTokenIssuer{}, clock, discardLogger(),
		services.WithLockoutNotifier(notifier))

	return &loginFixture{
		svc:      svc,
		clock:    clock,
		verifier: verifier,
		notifier: notifier,
		ledger:   ledger,
		repo:     repo,
	}
}

func (f *loginFixture) loginAt(t *testing.T, offset time.Duration, username, password string) models.LoginResult {
	t.Helper()

	f.clock.Advance(epoch.Add(offset).Sub(f.clock.Now()))
	result, err := f.svc.Login(context.Background(), username, password)
	require.NoError(t, err)
	return result
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newLoginFixture(t)

	result := f.loginAt(t, 0, "ghost", "whatever1")

	assert.Equal(t, models.NoSuchAccount{}, result)
	assert.Zero(t, f.verifier.Calls())

	state, err := f.ledger.State(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestLogin_Success(t *testing.T) {
	f := newLoginFixture(t)

	result := f.loginAt(t, 0, "alice", alicePassword)

	success, ok := result.(models.LoginSuccess)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, "token-u-alice", success.AccessToken)
	require.NotNil(t, success.Profile)
	assert.Equal(t, "alice", success.Profile.Username)
	assert.Equal(t, "alice@example.com", success.Profile.Email)
}

func TestLogin_TrimsUsername(t *testing.T) {
	f := newLoginFixture(t)

	result := f.loginAt(t, 0, "  alice ", alicePassword)
	assert.IsType(t, models.LoginSuccess{}, result)

	assert.Equal(t, models.NoSuchAccount{}, f.loginAt(t, 0, "   ", alicePassword))
}

func TestLogin_LockoutLifecycle(t *testing.T) {
	f := newLoginFixture(t)

	assert.Equal(t, models.WrongPassword{AttemptsRemaining: 2}, f.loginAt(t, 0, "alice", "wrong-pass1"))
	assert.Equal(t, models.WrongPassword{AttemptsRemaining: 1}, f.loginAt(t, time.Minute, "alice", "wrong-pass1"))

	locked, ok := f.loginAt(t, 2*time.Minute, "alice", "wrong-pass1").(models.LockedOut)
	require.True(t, ok)
	assert.True(t, locked.Triggered)
	assert.Equal(t, 10, locked.TimeRemainingMinutes())

	verifyCalls := f.verifier.Calls()

	// correct password while locked is refused without verification
	stillLocked, ok := f.loginAt(t, 5*time.Minute, "alice", alicePassword).(models.LockedOut)
	require.True(t, ok)
	assert.False(t, stillLocked.Triggered)
	assert.Equal(t, 7, stillLocked.TimeRemainingMinutes())
	assert.Equal(t, verifyCalls, f.verifier.Calls())

	assert.IsType(t, models.LoginSuccess{}, f.loginAt(t, 13*time.Minute, "alice", alicePassword))

	state, err := f.ledger.State(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestLogin_LockOnlyAffectsItsAccount(t *testing.T) {
	f := newLoginFixture(t)

	for i := 0; i < 3; i++ {
		f.loginAt(t, time.Duration(i)*time.Second, "alice", "wrong-pass1")
	}

	assert.IsType(t, models.LockedOut{}, f.loginAt(t, 10*time.Second, "alice", alicePassword))
	assert.IsType(t, models.LoginSuccess{}, f.loginAt(t, 10*time.Second, "bob", bobPassword))
}

func TestLogin_WindowExpiryRestartsCount(t *testing.T) {
	f := newLoginFixture(t)

	assert.Equal(t, models.WrongPassword{AttemptsRemaining: 2}, f.loginAt(t, 0, "bob", "wrong-pass1"))
	assert.Equal(t, models.WrongPassword{AttemptsRemaining: 2}, f.loginAt(t, 6*time.Minute, "bob", "wrong-pass1"))
}

func TestLogin_SuccessClearsFailures(t *testing.T) {
	f := newLoginFixture(t)

	f.loginAt(t, 0, "bob", "wrong-pass1")
	f.loginAt(t, 10*time.Second, "bob", "wrong-pass1")
	assert.IsType(t, models.LoginSuccess{}, f.loginAt(t, 20*time.Second, "bob", bobPassword))
	assert.Equal(t, models.WrongPassword{AttemptsRemaining: 2}, f.loginAt(t, 30*time.Second, "bob", "wrong-pass1"))
}

func TestLogin_NotifiesOnceWhenLockTriggers(t *testing.T) {
	f := newLoginFixture(t)

	for i := 0; i < 5; i++ {
		f.loginAt(t, time.Duration(i)*time.Second, "alice", "wrong-pass1")
	}
	f.svc.Wait()

	require.Equal(t, 1, f.notifier.Count())
	assert.Equal(t, "alice", f.notifier.Sent[0])
	assert.True(t, epoch.Add(2*time.Second+10*time.Minute).Equal(f.notifier.Until[0]))
}

func TestLogin_NotifierFailureDoesNotChangeOutcome(t *testing.T) {
	f := newLoginFixture(t)
	f.notifier.Err = errors.New("smtp: connection refused")

	f.loginAt(t, 0, "alice", "wrong-pass1")
	f.loginAt(t, time.Second, "alice", "wrong-pass1")
	result := f.loginAt(t, 2*time.Second, "alice", "wrong-pass1")
	f.svc.Wait()

	assert.Equal(t, models.LockedOut{TimeRemaining: 10 * time.Minute, Triggered: true}, result)
}

func TestLogin_InfrastructureErrorsLeaveLedgerUntouched(t *testing.T) {
	t.Run("store unavailable", func(t *testing.T) {
		f := newLoginFixture(t)
		f.repo.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
			return nil, errors.New("connection refused")
		}

		result, err := f.svc.Login(context.Background(), "alice", "wrong-pass1")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, models.ErrInternalServer)
	})

	t.Run("malformed stored hash", func(t *testing.T) {
		f := newLoginFixture(t)
		f.repo.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
			return &models.User{ID: "u-carol", Username: "carol", PasswordHash: "not-a-bcrypt-hash"}, nil
		}

		result, err := f.svc.Login(context.Background(), "carol", "anything1")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, models.ErrInternalServer)

		state, err := f.ledger.State(context.Background(), "carol")
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("token issuing fails", func(t *testing.T) {
		f := newLoginFixture(t)
		svc := services.NewLoginService(f.repo, f.verifier, f.ledger, &services.MockTokenIssuer{
			GenerateAccessTokenFunc: func(userID, username string) (string, error) {
				return "", errors.New("signing failed")
			},
		}, f.clock, discardLogger())

		result, err := svc.Login(context.Background(), "alice", alicePassword)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, models.ErrInternalServer)
	})
}

func TestLogin_ConcurrentFailuresLockExactlyOnce(t *testing.T) {
	f := newLoginFixture(t)
	results := make([]models.LoginResult, 24)

	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			result, err := f.svc.Login(context.Background(), "alice", "wrong-pass1")
			results[i] = result
			return err
		})
	}
	require.NoError(t, g.Wait())
	f.svc.Wait()

	var wrong, triggered int
	for _, result := range results {
		switch r := result.(type) {
		case models.WrongPassword:
			wrong++
		case models.LockedOut:
			if r.Triggered {
				triggered++
			}
		default:
			t.Fatalf("unexpected outcome %T", result)
		}
	}

	assert.Equal(t, 2, wrong)
	assert.Equal(t, 1, triggered)
	assert.Equal(t, 1, f.notifier.Count())
}

func TestUnlock(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.loginAt(t, 0, "alice", "wrong-pass1")
	}

	state, err := f.svc.LoginState(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.IsLocked())

	result, err := f.svc.Unlock(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptsReset{}, result)

	assert.IsType(t, models.LoginSuccess{}, f.loginAt(t, time.Minute, "alice", alicePassword))

	_, err = f.svc.Unlock(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.LoginState(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
