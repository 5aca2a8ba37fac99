// internal/catalog/store.go
package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libradesk/internal/apperr"
	"libradesk/internal/clock"
	"libradesk/internal/platform/db"
)

const tableBooks = "books"

var bookColumns = []any{"id", "isbn", "title", "author", "total_copies", "available_copies", "created_at", "updated_at"}

// Store is the Book Inventory Store. Every method takes the querier to run
// on so callers can enlist it in their own transaction.
type Store struct {
	b     db.Builder
	clock clock.Clock
}

func NewStore(b db.Builder, clk clock.Clock) *Store {
	return &Store{b: b, clock: clk}
}

// Insert persists a new book.
func (s *Store) Insert(ctx context.Context, q db.Querier, book *Book) error {
	_, err := db.Exec(ctx, q, s.b.Insert(tableBooks).Rows(goqu.Record{
		"id":               book.ID,
		"isbn":             book.ISBN,
		"title":            book.Title,
		"author":           book.Author,
		"total_copies":     book.TotalCopies,
		"available_copies": book.AvailableCopies,
		"created_at":       book.CreatedAt,
		"updated_at":       book.UpdatedAt,
	}))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("a book with ISBN %s already exists", book.ISBN)
		}
		return apperr.Transient("failed to insert book", err)
	}
	return nil
}

// GetBook loads a book by id.
func (s *Store) GetBook(ctx context.Context, q db.Querier, id uuid.UUID) (*Book, error) {
	var book Book
	err := db.Get(ctx, q, &book, s.b.From(tableBooks).Select(bookColumns...).Where(goqu.C("id").Eq(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("book %s not found", id)
	}
	if err != nil {
		return nil, apperr.Transient("failed to get book", err)
	}
	book.CreatedAt = book.CreatedAt.UTC()
	book.UpdatedAt = book.UpdatedAt.UTC()
	return &book, nil
}

// AdjustAvailableCopies moves available_copies by delta in a single
// conditional UPDATE. The row is left untouched and Conflict is returned
// when the result would leave [0, total_copies]; concurrent callers racing
// for the last copy therefore get exactly one winner.
func (s *Store) AdjustAvailableCopies(ctx context.Context, q db.Querier, id uuid.UUID, delta int) error {
	stmt := s.b.Update(tableBooks).
		Set(goqu.Record{
			"available_copies": goqu.L("available_copies + ?", delta),
			"updated_at":       db.Timestamp(s.clock.Now()),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.L("available_copies + ? BETWEEN 0 AND total_copies", delta),
		)

	n, err := db.Exec(ctx, q, stmt)
	if err != nil {
		return apperr.Transient("failed to adjust available copies", err)
	}
	if n == 1 {
		return nil
	}

	book, err := s.GetBook(ctx, q, id)
	if err != nil {
		return err
	}
	if delta < 0 {
		return apperr.Conflict("no copies of %q available", book.Title)
	}
	return apperr.Conflict("all %d copies of %q are already on the shelf", book.TotalCopies, book.Title)
}

// SetTotalCopies replaces total_copies and moves available_copies by the
// same amount in one conditional UPDATE. Conflict is returned when the new
// total is below the copies on loan.
func (s *Store) SetTotalCopies(ctx context.Context, q db.Querier, id uuid.UUID, total int) error {
	stmt := s.b.Update(tableBooks).
		Set(goqu.Record{
			"total_copies":     total,
			"available_copies": goqu.L("? - (total_copies - available_copies)", total),
			"updated_at":       db.Timestamp(s.clock.Now()),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.L("total_copies - available_copies <= ?", total),
		)

	n, err := db.Exec(ctx, q, stmt)
	if err != nil {
		return apperr.Transient("failed to update total copies", err)
	}
	if n == 1 {
		return nil
	}

	book, err := s.GetBook(ctx, q, id)
	if err != nil {
		return err
	}
	return apperr.Conflict("%d copies of %q are on loan; total cannot drop to %d", book.OnLoan(), book.Title, total)
}
