package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/bankauth/internal/database"
	"github.com/BradenHooton/bankauth/internal/lockout"
	"github.com/BradenHooton/bankauth/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginStateRepository stores ledger entries in Postgres. Updates are
// serialized per username with a transaction-scoped advisory lock, so
// exclusion holds across application instances.
type LoginStateRepository struct {
	db *database.DB
}

// NewLoginStateRepository creates a new LoginStateRepository
func NewLoginStateRepository(db *database.DB) *LoginStateRepository {
	return &LoginStateRepository{db: db}
}

func scanLoginState(row pgx.Row) (*models.AccountLoginState, error) {
	var state models.AccountLoginState
	var status string

	err := row.Scan(&state.Username, &state.FailureCount, &state.WindowStart, &status, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state.Status = models.LoginStatus(status)
	return &state, nil
}

// Get returns the entry for username, or nil if there is none
func (r *LoginStateRepository) Get(ctx context.Context, username string) (*models.AccountLoginState, error) {
	query := `
		SELECT username, failure_count, window_start, status, updated_at
		FROM login_states WHERE username = $1
	`

	return scanLoginState(r.db.Pool.QueryRow(ctx, query, username))
}

// Update runs fn against the current entry and writes its result in one transaction
func (r *LoginStateRepository) Update(ctx context.Context, username string, fn lockout.UpdateFunc) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, username); err != nil {
			return err
		}

		current, err := scanLoginState(tx.QueryRow(ctx, `
			SELECT username, failure_count, window_start, status, updated_at
			FROM login_states WHERE username = $1
			FOR UPDATE
		`, username))
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if next == nil {
			if current == nil {
				return nil
			}
			_, err := tx.Exec(ctx, `DELETE FROM login_states WHERE username = $1`, username)
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO login_states (username, failure_count, window_start, status, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (username) DO UPDATE SET
				failure_count = EXCLUDED.failure_count,
				window_start  = EXCLUDED.window_start,
				status        = EXCLUDED.status,
				updated_at    = EXCLUDED.updated_at
		`, username, next.FailureCount, next.WindowStart, string(next.Status), next.UpdatedAt)
		return err
	})
}

// Delete removes the entry for username
func (r *LoginStateRepository) Delete(ctx context.Context, username string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM login_states WHERE username = $1`, username)
	return err
}

// DeleteExpired removes entries that no longer affect any login outcome
func (r *LoginStateRepository) DeleteExpired(ctx context.Context, activeBefore, lockedBefore time.Time) (int64, error) {
	query := `
		DELETE FROM login_states
		WHERE (status = 'active' AND window_start < $1)
		   OR (status = 'locked' AND window_start <= $2)
	`

	result, err := r.db.Pool.Exec(ctx, query, activeBefore, lockedBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
