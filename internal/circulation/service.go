// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"libradesk/internal/audit"
	"libradesk/internal/catalog"
	"libradesk/internal/membership"
	"libradesk/internal/platform/db"
)

// Service defines the interface for the circulation service: the
// transactional facade over the Issue Ledger and the Book Inventory Store.
type Service interface {
	IssueBook(ctx context.Context, bookID, studentID uuid.UUID, loanDays int) (*Issue, error)
	ReturnBook(ctx context.Context, issueID uuid.UUID) (*Issue, error)
	GetIssue(ctx context.Context, issueID uuid.UUID) (*IssueDetail, error)
	History(ctx context.Context, issueID uuid.UUID) ([]audit.Event, error)
	ListIssues(ctx context.Context, filter ListFilter) (*Page, error)
	ListStudentIssues(ctx context.Context, studentID uuid.UUID, filter ListFilter) (*Page, error)
	ListOverdue(ctx context.Context) ([]IssueDetail, error)
	ListDueSoon(ctx context.Context, windowDays int) ([]IssueDetail, error)
	RecordNoticeSent(ctx context.Context, issueID uuid.UUID, at time.Time) error
	RecordOverdueNotice(ctx context.Context, issueID uuid.UUID, at time.Time) error
}

// Inventory is the slice of the Book Inventory Store the facade needs.
type Inventory interface {
	GetBook(ctx context.Context, q db.Querier, id uuid.UUID) (*catalog.Book, error)
	AdjustAvailableCopies(ctx context.Context, q db.Querier, id uuid.UUID, delta int) error
}

// Students looks up borrowers.
type Students interface {
	GetStudentByUserID(ctx context.Context, q db.Querier, id uuid.UUID) (*membership.Student, error)
}
