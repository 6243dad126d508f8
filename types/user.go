package types

import (
	"database/sql"
	"time"
)

// User is the full account record as stored. It is never serialized
// to API clients; handlers return SafeUser projections instead.
type User struct {
	// ID is the opaque unique identifier, generated at creation.
	ID string `json:"id" db:"id"`

	// Username is the unique login name among active accounts.
	Username string `json:"username" db:"username"`

	// Email is the user's email address, optional.
	Email string `json:"email" db:"email"`

	// Role indicates the authorization level, e.g. "admin" or "user".
	Role string `json:"role" db:"role"`

	// PasswordHash stores the bcrypt digest of the user's password.
	PasswordHash string `json:"-" db:"password_hash"`

	// ResetToken holds the pending password-reset token, if any.
	// It is set and cleared together with ResetTokenExpires.
	ResetToken sql.NullString `json:"-" db:"reset_token"`

	// ResetTokenExpires bounds the reset window.
	ResetTokenExpires sql.NullTime `json:"-" db:"reset_token_expires"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// DeletedAt marks the account soft-deleted when set. The row is
	// retained but excluded from all active-scoped lookups.
	DeletedAt sql.NullTime `json:"-" db:"deleted_at"`
}

// SafeUser is the outward-facing account projection. It deliberately
// carries no password hash and no reset-token material.
type SafeUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Safe projects the record into its outward-facing view.
func (u User) Safe() SafeUser {
	return SafeUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// Deleted reports whether the account is soft-deleted.
func (u User) Deleted() bool {
	return u.DeletedAt.Valid
}
