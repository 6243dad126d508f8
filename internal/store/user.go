package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bookhaven/apiserver/types"
)

const userColumns = `id, username, email, role, password_hash, reset_token, reset_token_expires, created_at, updated_at, deleted_at`

// UserFilter narrows List results. Zero-value fields are ignored.
type UserFilter struct {
	Username string
	Email    string
	Role     string
}

// UserRepository handles persistence for user accounts. Every lookup
// except GetAnyByID is scoped to active rows (deleted_at IS NULL).
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Insert persists a new account. The partial unique index on username
// serializes concurrent inserts; a duplicate active username surfaces
// as ErrConflict.
func (r *UserRepository) Insert(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, username, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	return r.getOne(ctx, `id = $1 AND deleted_at IS NULL`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getOne(ctx, `username = $1 AND deleted_at IS NULL`, username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getOne(ctx, `email = $1 AND deleted_at IS NULL`, email)
}

func (r *UserRepository) GetByResetToken(ctx context.Context, token string) (types.User, error) {
	return r.getOne(ctx, `reset_token = $1 AND deleted_at IS NULL`, token)
}

// GetAnyByID bypasses the active filter and returns the row whether or
// not it is soft-deleted.
func (r *UserRepository) GetAnyByID(ctx context.Context, id string) (types.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// List returns active accounts matching the filter, ordered by
// creation time, with offset/limit pagination.
func (r *UserRepository) List(ctx context.Context, filter UserFilter, offset, limit int) ([]types.User, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	conditions := []string{"deleted_at IS NULL"}
	args := []any{}
	if filter.Username != "" {
		args = append(args, filter.Username)
		conditions = append(conditions, "username = $"+strconv.Itoa(len(args)))
	}
	if filter.Email != "" {
		args = append(args, filter.Email)
		conditions = append(conditions, "email = $"+strconv.Itoa(len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conditions = append(conditions, "role = $"+strconv.Itoa(len(args)))
	}

	args = append(args, offset, limit)
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at, id
		OFFSET $` + strconv.Itoa(len(args)-1) + ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Update rewrites the mutable columns of an active account, including
// the reset-token pair, and refreshes updated_at. Returns ErrNotFound
// when the account is absent or soft-deleted, ErrConflict when the new
// username collides with another active account.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			role = $3,
			password_hash = $4,
			reset_token = $5,
			reset_token_expires = $6,
			updated_at = $7
		WHERE id = $8 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.ResetToken,
		user.ResetTokenExpires,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// SoftDelete marks an active account deleted. The row is retained.
func (r *UserRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE users
		SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (types.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ` + where
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.ResetToken,
		&user.ResetTokenExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	return user, err
}
