// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, isbn, title, author string, totalCopies int) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	Availability(ctx context.Context, id uuid.UUID) (*Availability, error)
	UpdateTotalCopies(ctx context.Context, id uuid.UUID, totalCopies int) (*Book, error)
}
