// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

const day = 24 * time.Hour

// Issue is one copy of a book loaned to one student until DueDate.
// Returned is true exactly when ReturnDate is set, and at most one
// unreturned Issue exists per (BookID, StudentID).
type Issue struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	BookID            uuid.UUID  `json:"book_id" db:"book_id"`
	StudentID         uuid.UUID  `json:"student_id" db:"student_id"`
	IssueDate         time.Time  `json:"issue_date" db:"issue_date"`
	DueDate           time.Time  `json:"due_date" db:"due_date"`
	ReturnDate        *time.Time `json:"return_date" db:"return_date"`
	Returned          bool       `json:"is_returned" db:"returned"`
	OverdueNotices    int        `json:"overdue_notices_sent" db:"overdue_notices_sent"`
	LastNoticeSent    *time.Time `json:"last_notice_sent" db:"last_notice_sent"`
	LastOverdueNotice *time.Time `json:"last_overdue_notice" db:"last_overdue_notice"` // overdue reminders only
}

// IsOverdue reports whether the issue is unreturned past its due date.
func (i *Issue) IsOverdue(now time.Time) bool {
	return !i.Returned && i.DueDate.Before(now)
}

// DaysOverdue is the number of whole days since the due date.
func (i *Issue) DaysOverdue(now time.Time) int {
	return int(now.Sub(i.DueDate) / day)
}

// DaysRemaining is the number of whole days until the due date.
func (i *Issue) DaysRemaining(now time.Time) int {
	return int(i.DueDate.Sub(now) / day)
}

func (i *Issue) normalize() {
	i.IssueDate = i.IssueDate.UTC()
	i.DueDate = i.DueDate.UTC()
	i.ReturnDate = utcPtr(i.ReturnDate)
	i.LastNoticeSent = utcPtr(i.LastNoticeSent)
	i.LastOverdueNotice = utcPtr(i.LastOverdueNotice)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// IssueDetail is an Issue joined with the book and student it refers to.
type IssueDetail struct {
	Issue
	BookTitle     string `json:"book_title" db:"book_title"`
	BookAuthor    string `json:"book_author" db:"book_author"`
	StudentName   string `json:"student_name" db:"student_name"`
	StudentEmail  string `json:"student_email" db:"student_email"`
	StudentRollNo string `json:"student_roll_no" db:"student_roll_no"`
}

// ListFilter selects a page of issues. A nil Returned matches all issues
// and a nil StudentID matches every borrower.
type ListFilter struct {
	Returned  *bool
	StudentID *uuid.UUID
	Page      int
	Limit     int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	MaxPage      = 1_000_000
)

func (f *ListFilter) validate() error {
	if f.Page == 0 {
		f.Page = DefaultPage
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Page < 1 || f.Page > MaxPage {
		return errInvalidPage
	}
	if f.Limit < 1 || f.Limit > MaxLimit {
		return errInvalidLimit
	}
	return nil
}

// Page is one page of issues plus the unpaginated total.
type Page struct {
	Issues     []IssueDetail `json:"issues"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"total_pages"`
}

// Audit event types.
const (
	EventIssueCreated  = "IssueCreated"
	EventIssueReturned = "IssueReturned"
)

type issueCreatedPayload struct {
	IssueID   uuid.UUID `json:"issue_id"`
	BookID    uuid.UUID `json:"book_id"`
	StudentID uuid.UUID `json:"student_id"`
	IssueDate time.Time `json:"issue_date"`
	DueDate   time.Time `json:"due_date"`
}

type issueReturnedPayload struct {
	IssueID    uuid.UUID `json:"issue_id"`
	BookID     uuid.UUID `json:"book_id"`
	StudentID  uuid.UUID `json:"student_id"`
	ReturnDate time.Time `json:"return_date"`
	Overdue    bool      `json:"overdue"`
}
