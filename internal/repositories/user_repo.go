package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/bankauth/internal/database"
	"github.com/BradenHooton/bankauth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, email, name, password_hash, role, created_at, updated_at`

// UserRepository is the Postgres credential store
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

func scanUser(row pgx.CollectableRow) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

// queryOne runs a single-row query and maps pgx errors to sentinels
func (r *UserRepository) queryOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return user, nil
}

// exec runs a statement that must touch exactly one user row
func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, models.ErrNotFound
	}
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername resolves the banking login name to its account
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// List returns users newest first
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("collect users: %w", err)
	}
	return users, nil
}

// Create inserts user with a fresh id. Timestamps come from the database.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	role := user.Role
	if role == "" {
		role = models.RoleUser
	}

	return r.queryOne(ctx, `
		INSERT INTO users (id, username, email, name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		uuid.NewString(), user.Username, user.Email, user.Name, user.PasswordHash, role,
	)
}

// Update overwrites the editable profile fields. Username is immutable.
func (r *UserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, models.ErrNotFound
	}
	return r.queryOne(ctx, `
		UPDATE users SET name = $1, email = $2, role = $3, updated_at = now()
		WHERE id = $4
		RETURNING `+userColumns,
		user.Name, user.Email, user.Role, id,
	)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if err := uuid.Validate(id); err != nil {
		return models.ErrNotFound
	}
	return r.exec(ctx, `UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`, passwordHash, id)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if err := uuid.Validate(id); err != nil {
		return models.ErrNotFound
	}
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}
