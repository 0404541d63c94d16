package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/bankauth/internal/lockout"
	"github.com/BradenHooton/bankauth/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteLoginStateSchema = `
CREATE TABLE IF NOT EXISTS login_states (
	username      TEXT PRIMARY KEY,
	failure_count INTEGER NOT NULL,
	window_start  INTEGER NOT NULL,
	status        TEXT NOT NULL CHECK (status IN ('active', 'locked')),
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_login_states_status_window ON login_states(status, window_start);
`

// SQLiteLoginStateRepository keeps ledger entries in a local SQLite file
// for single-instance deployments. Times are stored as unix nanoseconds.
type SQLiteLoginStateRepository struct {
	db   *sql.DB
	keys lockout.KeyedMutex
}

// NewSQLiteLoginStateRepository opens (or creates) the database at path
func NewSQLiteLoginStateRepository(ctx context.Context, path string) (*SQLiteLoginStateRepository, error) {
	// _txlock=immediate takes the write lock at BEGIN so busy_timeout covers
	// contention between usernames; a single connection keeps writers in-process queued.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteLoginStateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create login_states table: %w", err)
	}

	return &SQLiteLoginStateRepository{db: db}, nil
}

func (r *SQLiteLoginStateRepository) Close() error {
	return r.db.Close()
}

type sqlQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteLoginStateRepository) get(ctx context.Context, q sqlQueryer, username string) (*models.AccountLoginState, error) {
	var (
		state       models.AccountLoginState
		status      string
		windowStart int64
		updatedAt   int64
	)

	err := q.QueryRowContext(ctx, `
		SELECT username, failure_count, window_start, status, updated_at
		FROM login_states WHERE username = ?
	`, username).Scan(&state.Username, &state.FailureCount, &windowStart, &status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state.Status = models.LoginStatus(status)
	state.WindowStart = time.Unix(0, windowStart).UTC()
	state.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &state, nil
}

func (r *SQLiteLoginStateRepository) Get(ctx context.Context, username string) (*models.AccountLoginState, error) {
	return r.get(ctx, r.db, username)
}

func (r *SQLiteLoginStateRepository) Update(ctx context.Context, username string, fn lockout.UpdateFunc) error {
	unlock := r.keys.Lock(username)
	defer unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := r.get(ctx, tx, username)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	switch {
	case next == nil && current == nil:
		return nil
	case next == nil:
		_, err = tx.ExecContext(ctx, `DELETE FROM login_states WHERE username = ?`, username)
	default:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO login_states (username, failure_count, window_start, status, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (username) DO UPDATE SET
				failure_count = excluded.failure_count,
				window_start  = excluded.window_start,
				status        = excluded.status,
				updated_at    = excluded.updated_at
		`, username, next.FailureCount, next.WindowStart.UnixNano(), string(next.Status), next.UpdatedAt.UnixNano())
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteLoginStateRepository) Delete(ctx context.Context, username string) error {
	unlock := r.keys.Lock(username)
	defer unlock()

	_, err := r.db.ExecContext(ctx, `DELETE FROM login_states WHERE username = ?`, username)
	return err
}

func (r *SQLiteLoginStateRepository) DeleteExpired(ctx context.Context, activeBefore, lockedBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM login_states
		WHERE (status = 'active' AND window_start < ?)
		   OR (status = 'locked' AND window_start <= ?)
	`, activeBefore.UnixNano(), lockedBefore.UnixNano())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
