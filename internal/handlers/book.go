package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bookhaven/apiserver/internal/services"
	"github.com/bookhaven/apiserver/internal/store"
	"github.com/bookhaven/apiserver/types"
)

const maxCoverBytes = 16 << 20

// BookHandler provides catalog endpoints.
type BookHandler struct {
	bookService *services.BookService
}

func NewBookHandler(bookService *services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// BookRouter registers catalog routes. Reads are public; writes
// require an authenticated admin caller.
func BookRouter(
	r chi.Router,
	bookService *services.BookService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewBookHandler(bookService)
	admin := RequireAdmin(userService)

	r.Get("/", handler.ListBooks)
	r.Get("/export.csv", handler.ExportBooks)
	r.With(authMiddleware, admin).Post("/", handler.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.Get("/", handler.GetBook)
		r.Get("/cover", handler.GetCover)
		r.With(authMiddleware, admin).Put("/", handler.UpdateBook)
		r.With(authMiddleware, admin).Delete("/", handler.DeleteBook)
		r.With(authMiddleware, admin).Post("/cover", handler.UploadCover)
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter, err := parseBookFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	books, total, err := h.bookService.FindAll(r.Context(), filter, page, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list books")
		return
	}

	writeJSON(w, http.StatusOK, BookListResponse{
		Items: books,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *BookHandler) ExportBooks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBookFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="books.csv"`)
	if err := h.bookService.ExportCSV(r.Context(), w, filter); err != nil {
		// Headers are already sent; nothing left to do but log via the
		// service layer.
		return
	}
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.bookService.FindOne(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		writeServiceError(w, err, "failed to fetch book")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req services.BookInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	book, err := h.bookService.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "failed to create book")
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var req services.BookInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	book, err := h.bookService.Update(r.Context(), chi.URLParam(r, "bookID"), req)
	if err != nil {
		writeServiceError(w, err, "failed to update book")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.bookService.Remove(r.Context(), chi.URLParam(r, "bookID")); err != nil {
		writeServiceError(w, err, "failed to delete book")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("cover")
	if err != nil {
		writeError(w, http.StatusBadRequest, "cover file is required")
		return
	}
	defer file.Close()

	if header.Size > maxCoverBytes {
		writeError(w, http.StatusBadRequest, "cover file too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	book, err := h.bookService.AttachCover(r.Context(), chi.URLParam(r, "bookID"), file, header.Size, contentType)
	if err != nil {
		writeServiceError(w, err, "failed to attach cover")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	reader, err := h.bookService.OpenCover(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		writeServiceError(w, err, "failed to fetch cover")
		return
	}
	defer reader.Close()

	_, _ = io.Copy(w, reader)
}

// BookListResponse is the paginated book list payload.
type BookListResponse struct {
	Items []types.Book `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

func parseBookFilter(r *http.Request) (store.BookFilter, error) {
	filter := store.BookFilter{
		Genre:     strings.TrimSpace(r.URL.Query().Get("genre")),
		Publisher: strings.TrimSpace(r.URL.Query().Get("publisher")),
		Author:    strings.TrimSpace(r.URL.Query().Get("author")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("available")); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			return store.BookFilter{}, errors.New("invalid available filter")
		}
		filter.Available = &available
	}
	return filter, nil
}
