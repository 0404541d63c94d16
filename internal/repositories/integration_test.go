//go:build integration

package repositories_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/bankauth/internal/database"
	"github.com/BradenHooton/bankauth/internal/lockout"
	"github.com/BradenHooton/bankauth/internal/models"
	"github.com/BradenHooton/bankauth/internal/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func setupPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("bankauth_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPostgres_UserRepository(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewUserRepository(setupPostgres(t))

	created, err := repo.Create(ctx, &models.User{
		Username:     "alice",
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: "$2a$12$hash",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user", created.Role)

	found, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.Create(ctx, &models.User{
		Username:     "alice",
		Email:        "other@example.com",
		Name:         "Other",
		PasswordHash: "$2a$12$hash",
	})
	assert.True(t, errors.Is(err, models.ErrConflict))

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, repo.UpdatePassword(ctx, created.ID, "$2a$12$other"))
	require.NoError(t, repo.Delete(ctx, created.ID))
	assert.True(t, errors.Is(repo.Delete(ctx, created.ID), models.ErrNotFound))
}

func TestPostgres_LoginStateRepository_LedgerScenario(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewLoginStateRepository(setupPostgres(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger, err := lockout.NewLedger(store, lockout.DefaultPolicy(), logger)
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	result, err := ledger.RecordOutcome(ctx, "carol", false, start)
	require.NoError(t, err)
	assert.Equal(t, models.WrongPassword{AttemptsRemaining: 2}, result)

	result, err = ledger.RecordOutcome(ctx, "carol", false, start.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.WrongPassword{AttemptsRemaining: 1}, result)

	lockedAt := start.Add(time.Minute)
	result, err = ledger.RecordOutcome(ctx, "carol", false, lockedAt)
	require.NoError(t, err)
	assert.Equal(t, models.LockedOut{TimeRemaining: 10 * time.Minute, Triggered: true}, result)

	result, err = ledger.Check(ctx, "carol", lockedAt.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.LockedOut{TimeRemaining: 7 * time.Minute}, result)

	deleted, err := ledger.Prune(ctx, lockedAt.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	state, err := ledger.State(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestPostgres_LoginStateRepository_ConcurrentFailures(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewLoginStateRepository(setupPostgres(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger, err := lockout.NewLedger(store, lockout.DefaultPolicy(), logger)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	results := make([]models.LoginResult, 20)

	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			result, err := ledger.RecordOutcome(ctx, "dave", false, now)
			results[i] = result
			return err
		})
	}
	require.NoError(t, g.Wait())

	var triggered int
	for _, result := range results {
		if lo, ok := result.(models.LockedOut); ok && lo.Triggered {
			triggered++
		}
	}
	assert.Equal(t, 1, triggered)
}
