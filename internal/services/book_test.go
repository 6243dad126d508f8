package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookhaven/apiserver/internal/store"
	"github.com/bookhaven/apiserver/types"
)

type fakeBookRepo struct {
	books map[string]types.Book
	order []string
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: make(map[string]types.Book)}
}

func (r *fakeBookRepo) matches(book types.Book, filter store.BookFilter) bool {
	if book.DeletedAt.Valid {
		return false
	}
	if filter.Genre != "" && book.Genre != filter.Genre {
		return false
	}
	if filter.Publisher != "" && book.Publisher != filter.Publisher {
		return false
	}
	if filter.Author != "" && book.Author != filter.Author {
		return false
	}
	if filter.Available != nil && book.Available != *filter.Available {
		return false
	}
	return true
}

func (r *fakeBookRepo) Insert(_ context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now
	r.books[book.ID] = book
	r.order = append(r.order, book.ID)
	return book, nil
}

func (r *fakeBookRepo) GetByID(_ context.Context, id string) (types.Book, error) {
	book, ok := r.books[id]
	if !ok || book.DeletedAt.Valid {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (r *fakeBookRepo) List(ctx context.Context, filter store.BookFilter, offset, limit int) ([]types.Book, int, error) {
	all, err := r.ListAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *fakeBookRepo) ListAll(_ context.Context, filter store.BookFilter) ([]types.Book, error) {
	var all []types.Book
	for _, id := range r.order {
		if book := r.books[id]; r.matches(book, filter) {
			all = append(all, book)
		}
	}
	return all, nil
}

func (r *fakeBookRepo) Update(_ context.Context, book types.Book) (types.Book, error) {
	existing, ok := r.books[book.ID]
	if !ok || existing.DeletedAt.Valid {
		return types.Book{}, store.ErrNotFound
	}
	book.UpdatedAt = time.Now()
	r.books[book.ID] = book
	return book, nil
}

func (r *fakeBookRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	book, ok := r.books[id]
	if !ok || book.DeletedAt.Valid {
		return store.ErrNotFound
	}
	book.DeletedAt.Time = at
	book.DeletedAt.Valid = true
	r.books[id] = book
	return nil
}

type memCoverStore struct {
	objects map[string][]byte
}

func newMemCoverStore() *memCoverStore {
	return &memCoverStore{objects: make(map[string][]byte)}
}

func (s *memCoverStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memCoverStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memCoverStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func newBookFixture(t *testing.T) (*BookService, *fakeBookRepo, *memCoverStore) {
	t.Helper()

	repo := newFakeBookRepo()
	covers := newMemCoverStore()
	svc := NewBookService(repo, covers, nil, slog.Default())

	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("book-%04d", seq)
	}
	return svc, repo, covers
}

func TestBookCreateAndValidation(t *testing.T) {
	svc, _, _ := newBookFixture(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, BookInput{Title: "Dune", Author: "Herbert", Genre: "scifi", Price: 9.99})
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
	assert.True(t, book.Available, "available defaults to true")

	for _, input := range []BookInput{
		{Author: "Herbert", Genre: "scifi", Price: 9.99},
		{Title: "Dune", Genre: "scifi", Price: 9.99},
		{Title: "Dune", Author: "Herbert", Price: 9.99},
		{Title: "Dune", Author: "Herbert", Genre: "scifi", Price: 0},
	} {
		_, err := svc.Create(ctx, input)
		assert.ErrorIs(t, err, ErrValidation, "input %+v", input)
	}
}

func TestBookFindAllFilters(t *testing.T) {
	svc, _, _ := newBookFixture(t)
	ctx := context.Background()

	unavailable := false
	seed := []BookInput{
		{Title: "Dune", Author: "Herbert", Genre: "scifi", Price: 9.99},
		{Title: "Foundation", Author: "Asimov", Genre: "scifi", Price: 7.50},
		{Title: "Emma", Author: "Austen", Genre: "classic", Price: 4.25, Available: &unavailable},
	}
	for _, input := range seed {
		_, err := svc.Create(ctx, input)
		require.NoError(t, err)
	}

	scifi, total, err := svc.FindAll(ctx, store.BookFilter{Genre: "scifi"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, scifi, 2)

	avail := true
	available, total, err := svc.FindAll(ctx, store.BookFilter{Available: &avail}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, available, 2)

	none, total, err := svc.FindAll(ctx, store.BookFilter{Genre: "poetry"}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}

func TestBookRemoveSoftDeletes(t *testing.T) {
	svc, repo, _ := newBookFixture(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, BookInput{Title: "Dune", Author: "Herbert", Genre: "scifi", Price: 9.99})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, book.ID))
	_, err = svc.FindOne(ctx, book.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	raw := repo.books[book.ID]
	assert.True(t, raw.DeletedAt.Valid)
}

func TestBookExportCSV(t *testing.T) {
	svc, _, _ := newBookFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, BookInput{Title: "Dune", Author: "Herbert", Publisher: "Ace", Genre: "scifi", Price: 9.99})
	require.NoError(t, err)
	_, err = svc.Create(ctx, BookInput{Title: "Emma", Author: "Austen", Genre: "classic", Price: 4.25})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, &buf, store.BookFilter{}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,title,author,publisher,price,available,genre", lines[0])
	assert.Contains(t, lines[1], "Dune,Herbert,Ace,9.99,true,scifi")
	assert.Contains(t, lines[2], "Emma,Austen,,4.25,true,classic")

	// Filtered export only includes matches.
	buf.Reset()
	require.NoError(t, svc.ExportCSV(ctx, &buf, store.BookFilter{Genre: "classic"}))
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
}

func TestBookCoverRoundTrip(t *testing.T) {
	svc, _, covers := newBookFixture(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, BookInput{Title: "Dune", Author: "Herbert", Genre: "scifi", Price: 9.99})
	require.NoError(t, err)

	_, err = svc.OpenCover(ctx, book.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "no cover attached yet")

	img := []byte("fake-png-bytes")
	updated, err := svc.AttachCover(ctx, book.ID, bytes.NewReader(img), int64(len(img)), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/books/"+book.ID+"/cover", updated.ImageURL)
	assert.Contains(t, covers.objects, "covers/"+book.ID)

	reader, err := svc.OpenCover(ctx, book.ID)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, img, data)
}

func TestBookCoverWithoutStorage(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, nil, nil, slog.Default())

	_, err := svc.AttachCover(context.Background(), "any", bytes.NewReader(nil), 0, "image/png")
	assert.ErrorIs(t, err, ErrNoCoverStorage)
	_, err = svc.OpenCover(context.Background(), "any")
	assert.ErrorIs(t, err, ErrNoCoverStorage)
}
