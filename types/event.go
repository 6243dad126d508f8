package types

import "time"

// Account event types published to the accounts channel.
const (
	EventUserCreated        = "user.created"
	EventUserDeleted        = "user.deleted"
	EventPasswordResetStart = "user.password_reset_requested"
	EventPasswordResetDone  = "user.password_reset"
)

// Catalog event types published to the catalog channel.
const (
	EventBookCreated = "book.created"
	EventBookDeleted = "book.deleted"
)

// AccountEvent describes an account lifecycle transition. The payload
// never includes credentials or reset tokens.
type AccountEvent struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

// CatalogEvent describes a catalog change.
type CatalogEvent struct {
	Type   string    `json:"type"`
	BookID string    `json:"book_id"`
	Title  string    `json:"title"`
	At     time.Time `json:"at"`
}
