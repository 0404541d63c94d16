package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/bankauth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories translate into sentinel errors
const (
	sqlStateUniqueViolation  = "23505"
	sqlStateNotNullViolation = "23502"
	sqlStateForeignKey       = "23503"
	sqlStateCheckViolation   = "23514"
)

// MapPostgresError translates pgx errors into models sentinels. Unknown
// errors pass through unchanged.
func MapPostgresError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case sqlStateUniqueViolation:
		return models.ErrConflict
	case sqlStateNotNullViolation, sqlStateForeignKey, sqlStateCheckViolation:
		return models.ErrBadRequest
	default:
		return err
	}
}

// WithTransaction runs fn in a transaction. A nil return commits; an error
// or panic rolls back.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if err = tx.Commit(ctx); err != nil {
			err = fmt.Errorf("commit transaction: %w", err)
		}
	}()

	return fn(tx)
}
