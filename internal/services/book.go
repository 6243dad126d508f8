package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/bookhaven/apiserver/internal/store"
	"github.com/bookhaven/apiserver/types"
	"github.com/google/uuid"
)

const catalogChannel = "catalog"

// ErrNoCoverStorage is returned when cover operations are invoked but
// no object-storage backend is configured.
var ErrNoCoverStorage = errors.New("cover storage not configured")

// BookRepository defines persistence operations for catalog entries.
type BookRepository interface {
	Insert(ctx context.Context, book types.Book) (types.Book, error)
	GetByID(ctx context.Context, id string) (types.Book, error)
	List(ctx context.Context, filter store.BookFilter, offset, limit int) ([]types.Book, int, error)
	ListAll(ctx context.Context, filter store.BookFilter) ([]types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// CoverStore holds book cover objects. A nil store disables covers.
type CoverStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// BookInput is the payload for Create and Update.
type BookInput struct {
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Publisher string  `json:"publisher,omitempty"`
	Price     float64 `json:"price"`
	Available *bool   `json:"available,omitempty"`
	Genre     string  `json:"genre"`
}

// BookService encapsulates catalog use-cases: CRUD with soft delete,
// filtered listing, CSV export, and cover image attachment.
type BookService struct {
	repo   BookRepository
	covers CoverStore
	events EventPublisher
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewBookService(repo BookRepository, covers CoverStore, events EventPublisher, logger *slog.Logger) *BookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookService{
		repo:   repo,
		covers: covers,
		events: events,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (s *BookService) Create(ctx context.Context, input BookInput) (types.Book, error) {
	if err := validateBook(input); err != nil {
		return types.Book{}, err
	}

	available := true
	if input.Available != nil {
		available = *input.Available
	}

	book, err := s.repo.Insert(ctx, types.Book{
		ID:        s.newID(),
		Title:     input.Title,
		Author:    input.Author,
		Publisher: input.Publisher,
		Price:     input.Price,
		Available: available,
		Genre:     input.Genre,
	})
	if err != nil {
		return types.Book{}, err
	}

	s.logger.Info("book created", "book_id", book.ID, "title", book.Title)
	s.publishEvent(ctx, types.EventBookCreated, book)
	return book, nil
}

// FindAll returns active books matching the filter plus the total
// match count. An empty page is not an error.
func (s *BookService) FindAll(ctx context.Context, filter store.BookFilter, page, limit int) ([]types.Book, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, filter, (page-1)*limit, limit)
}

func (s *BookService) FindOne(ctx context.Context, id string) (types.Book, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *BookService) Update(ctx context.Context, id string, input BookInput) (types.Book, error) {
	if err := validateBook(input); err != nil {
		return types.Book{}, err
	}

	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Book{}, err
	}

	book.Title = input.Title
	book.Author = input.Author
	book.Publisher = input.Publisher
	book.Price = input.Price
	book.Genre = input.Genre
	if input.Available != nil {
		book.Available = *input.Available
	}

	return s.repo.Update(ctx, book)
}

func (s *BookService) Remove(ctx context.Context, id string) error {
	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}

	s.logger.Info("book soft-deleted", "book_id", id)
	s.publishEvent(ctx, types.EventBookDeleted, book)
	return nil
}

// ExportCSV streams all active books matching the filter as CSV.
func (s *BookService) ExportCSV(ctx context.Context, w io.Writer, filter store.BookFilter) error {
	books, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "title", "author", "publisher", "price", "available", "genre"}); err != nil {
		return err
	}
	for _, book := range books {
		record := []string{
			book.ID,
			book.Title,
			book.Author,
			book.Publisher,
			strconv.FormatFloat(book.Price, 'f', 2, 64),
			strconv.FormatBool(book.Available),
			book.Genre,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// AttachCover stores a cover image object for the book and records the
// cover URL on the row.
func (s *BookService) AttachCover(ctx context.Context, id string, r io.Reader, size int64, contentType string) (types.Book, error) {
	if s.covers == nil {
		return types.Book{}, ErrNoCoverStorage
	}

	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Book{}, err
	}

	if err := s.covers.Put(ctx, coverKey(id), r, size, contentType); err != nil {
		return types.Book{}, err
	}

	book.ImageURL = fmt.Sprintf("/books/%s/cover", id)
	return s.repo.Update(ctx, book)
}

// OpenCover opens the stored cover image for reading. Fails with
// store.ErrNotFound when the book has no attached cover.
func (s *BookService) OpenCover(ctx context.Context, id string) (io.ReadCloser, error) {
	if s.covers == nil {
		return nil, ErrNoCoverStorage
	}

	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if book.ImageURL == "" {
		return nil, store.ErrNotFound
	}
	return s.covers.Get(ctx, coverKey(id))
}

func (s *BookService) publishEvent(ctx context.Context, eventType string, book types.Book) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(types.CatalogEvent{
		Type:   eventType,
		BookID: book.ID,
		Title:  book.Title,
		At:     s.now(),
	})
	if err != nil {
		return
	}
	if _, err := s.events.Publish(ctx, catalogChannel, payload, map[string]string{"type": eventType}); err != nil {
		s.logger.Warn("failed to publish catalog event", "type", eventType, "error", err)
	}
}

func coverKey(bookID string) string {
	return "covers/" + bookID
}

func validateBook(input BookInput) error {
	if input.Title == "" {
		return validationErr("title is required")
	}
	if input.Author == "" {
		return validationErr("author is required")
	}
	if input.Genre == "" {
		return validationErr("genre is required")
	}
	if input.Price <= 0 {
		return validationErr("price must be positive")
	}
	return nil
}
