package types

import (
	"database/sql"
	"time"
)

// Book is a catalog entry.
type Book struct {
	ID        string  `json:"id" db:"id"`
	Title     string  `json:"title" db:"title"`
	Author    string  `json:"author" db:"author"`
	Publisher string  `json:"publisher,omitempty" db:"publisher"`
	Price     float64 `json:"price" db:"price"`
	Available bool    `json:"available" db:"available"`
	Genre     string  `json:"genre" db:"genre"`

	// ImageURL points at the stored cover object, when one has been
	// attached.
	ImageURL string `json:"image_url,omitempty" db:"image_url"`

	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
	DeletedAt sql.NullTime `json:"-" db:"deleted_at"`
}
