// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	RegisterStudent(ctx context.Context, email, name, rollNo, password string) (*Student, error)
	Authenticate(ctx context.Context, email, password string) (*Student, error)
	GetStudentByUserID(ctx context.Context, id uuid.UUID) (*Student, error)
}
