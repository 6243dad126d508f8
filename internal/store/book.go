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

const bookColumns = `id, title, author, publisher, price, available, genre, image_url, created_at, updated_at, deleted_at`

// BookFilter narrows List results. Nil/zero fields are ignored.
type BookFilter struct {
	Genre     string
	Publisher string
	Author    string
	Available *bool
}

// BookRepository handles persistence for catalog entries. Lookups are
// scoped to active rows.
type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) Insert(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `
		INSERT INTO books (id, title, author, publisher, price, available, genre, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		book.ID,
		book.Title,
		book.Author,
		book.Publisher,
		book.Price,
		book.Available,
		book.Genre,
		book.ImageURL,
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		return types.Book{}, err
	}
	return book, nil
}

func (r *BookRepository) GetByID(ctx context.Context, id string) (types.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE id = $1 AND deleted_at IS NULL`
	book, err := scanBook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

// List returns active books matching the filter plus the total match
// count for pagination.
func (r *BookRepository) List(ctx context.Context, filter BookFilter, offset, limit int) ([]types.Book, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where, args := bookWhere(filter)

	var total int
	countQuery := `SELECT COUNT(1) FROM books WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, offset, limit)
	listQuery := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE ` + where + `
		ORDER BY created_at, id
		OFFSET $` + strconv.Itoa(len(args)-1) + ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	books := make([]types.Book, 0, limit)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// ListAll streams every active book matching the filter, unpaginated.
// Used by the CSV export.
func (r *BookRepository) ListAll(ctx context.Context, filter BookFilter) ([]types.Book, error) {
	where, args := bookWhere(filter)
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE ` + where + `
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []types.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	const query = `
		UPDATE books
		SET title = $1,
			author = $2,
			publisher = $3,
			price = $4,
			available = $5,
			genre = $6,
			image_url = $7,
			updated_at = $8
		WHERE id = $9 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.Publisher,
		book.Price,
		book.Available,
		book.Genre,
		book.ImageURL,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return types.Book{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Book{}, err
	}
	if affected == 0 {
		return types.Book{}, ErrNotFound
	}
	return book, nil
}

func (r *BookRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE books
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

func bookWhere(filter BookFilter) (string, []any) {
	conditions := []string{"deleted_at IS NULL"}
	args := []any{}
	if filter.Genre != "" {
		args = append(args, filter.Genre)
		conditions = append(conditions, "genre = $"+strconv.Itoa(len(args)))
	}
	if filter.Publisher != "" {
		args = append(args, filter.Publisher)
		conditions = append(conditions, "publisher = $"+strconv.Itoa(len(args)))
	}
	if filter.Author != "" {
		args = append(args, filter.Author)
		conditions = append(conditions, "author = $"+strconv.Itoa(len(args)))
	}
	if filter.Available != nil {
		args = append(args, *filter.Available)
		conditions = append(conditions, "available = $"+strconv.Itoa(len(args)))
	}
	return strings.Join(conditions, " AND "), args
}

func scanBook(row rowScanner) (types.Book, error) {
	var book types.Book
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Publisher,
		&book.Price,
		&book.Available,
		&book.Genre,
		&book.ImageURL,
		&book.CreatedAt,
		&book.UpdatedAt,
		&book.DeletedAt,
	)
	return book, err
}
