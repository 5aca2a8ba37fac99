// internal/catalog/implementation.go
package catalog

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"libradesk/internal/apperr"
	"libradesk/internal/clock"
	"libradesk/internal/platform/db"
)

// service implements the Service interface.
type service struct {
	db    *db.DB
	store *Store
	clock clock.Clock
	log   *slog.Logger
}

// NewService creates a new catalog service instance.
func NewService(conn *db.DB, store *Store, clk clock.Clock, log *slog.Logger) Service {
	return &service{
		db:    conn,
		store: store,
		clock: clk,
		log:   log,
	}
}

// AddBook adds a title with all of its copies on the shelf.
func (s *service) AddBook(ctx context.Context, isbn, title, author string, totalCopies int) (*Book, error) {
	isbn, title, author = strings.TrimSpace(isbn), strings.TrimSpace(title), strings.TrimSpace(author)
	if isbn == "" || title == "" || author == "" {
		return nil, apperr.Validation("isbn, title and author are required")
	}
	// Titles and authors end up in mail headers.
	for _, v := range []string{isbn, title, author} {
		if strings.ContainsFunc(v, unicode.IsControl) {
			return nil, apperr.Validation("isbn, title and author cannot contain control characters")
		}
	}
	if totalCopies < 0 {
		return nil, apperr.Validation("total_copies cannot be negative")
	}

	now := db.Timestamp(s.clock.Now())
	book := &Book{
		ID:              uuid.New(),
		ISBN:            isbn,
		Title:           title,
		Author:          author,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, s.db, book); err != nil {
		return nil, err
	}

	s.log.Info("book added", "book_id", book.ID, "isbn", isbn, "copies", totalCopies)
	return book, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.store.GetBook(ctx, s.db, id)
}

// Availability reports how many copies are on the shelf.
func (s *service) Availability(ctx context.Context, id uuid.UUID) (*Availability, error) {
	book, err := s.store.GetBook(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &Availability{
		BookID:          book.ID,
		TotalCopies:     book.TotalCopies,
		AvailableCopies: book.AvailableCopies,
		IsAvailable:     book.AvailableCopies > 0,
	}, nil
}

// UpdateTotalCopies changes the number of owned copies. Copies on loan stay
// on loan, so the total cannot drop below them.
func (s *service) UpdateTotalCopies(ctx context.Context, id uuid.UUID, totalCopies int) (*Book, error) {
	if totalCopies < 0 {
		return nil, apperr.Validation("total_copies cannot be negative")
	}
	if err := s.store.SetTotalCopies(ctx, s.db, id, totalCopies); err != nil {
		return nil, err
	}
	book, err := s.store.GetBook(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("book copies updated", "book_id", id, "total", book.TotalCopies, "available", book.AvailableCopies)
	return book, nil
}
