// internal/circulation/ledger.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libradesk/internal/apperr"
	"libradesk/internal/platform/db"
)

const tableIssues = "issues"

var (
	errInvalidPage  = apperr.Validation("page must be between 1 and %d", MaxPage)
	errInvalidLimit = apperr.Validation("limit must be between 1 and %d", MaxLimit)

	notReturned = goqu.L("NOT returned")
)

var issueColumns = []any{
	"id", "book_id", "student_id", "issue_date", "due_date",
	"return_date", "returned", "overdue_notices_sent", "last_notice_sent",
	"last_overdue_notice",
}

// Ledger is the Issue Ledger: it owns issue rows and their state
// transitions. It never touches book counters.
type Ledger struct {
	b db.Builder
}

func NewLedger(b db.Builder) *Ledger {
	return &Ledger{b: b}
}

// Insert persists a new unreturned issue. The partial unique index on
// (book_id, student_id) turns a concurrent duplicate into Conflict.
func (l *Ledger) Insert(ctx context.Context, q db.Querier, issue *Issue) error {
	_, err := db.Exec(ctx, q, l.b.Insert(tableIssues).Rows(goqu.Record{
		"id":                   issue.ID,
		"book_id":              issue.BookID,
		"student_id":           issue.StudentID,
		"issue_date":           issue.IssueDate,
		"due_date":             issue.DueDate,
		"returned":             goqu.L("FALSE"),
		"overdue_notices_sent": 0,
	}))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("student %s already has an unreturned copy of book %s", issue.StudentID, issue.BookID)
		}
		return apperr.Transient("failed to insert issue", err)
	}
	return nil
}

// Get loads an issue by id.
func (l *Ledger) Get(ctx context.Context, q db.Querier, id uuid.UUID) (*Issue, error) {
	var issue Issue
	err := db.Get(ctx, q, &issue, l.b.From(tableIssues).Select(issueColumns...).Where(goqu.C("id").Eq(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("issue %s not found", id)
	}
	if err != nil {
		return nil, apperr.Transient("failed to get issue", err)
	}
	issue.normalize()
	return &issue, nil
}

// HasActive reports whether the student holds an unreturned copy of the book.
func (l *Ledger) HasActive(ctx context.Context, q db.Querier, bookID, studentID uuid.UUID) (bool, error) {
	var n int
	err := db.Get(ctx, q, &n, l.b.From(tableIssues).
		Select(goqu.COUNT("*")).
		Where(goqu.C("book_id").Eq(bookID), goqu.C("student_id").Eq(studentID), notReturned))
	if err != nil {
		return false, apperr.Transient("failed to check active issues", err)
	}
	return n > 0, nil
}

// CountActive returns the number of unreturned issues of a book.
func (l *Ledger) CountActive(ctx context.Context, q db.Querier, bookID uuid.UUID) (int, error) {
	var n int
	err := db.Get(ctx, q, &n, l.b.From(tableIssues).
		Select(goqu.COUNT("*")).
		Where(goqu.C("book_id").Eq(bookID), notReturned))
	if err != nil {
		return 0, apperr.Transient("failed to count active issues", err)
	}
	return n, nil
}

// MarkReturned flips an unreturned issue to returned. Conflict means another
// caller returned it first.
func (l *Ledger) MarkReturned(ctx context.Context, q db.Querier, id uuid.UUID, at time.Time) error {
	n, err := db.Exec(ctx, q, l.b.Update(tableIssues).
		Set(goqu.Record{"returned": goqu.L("TRUE"), "return_date": at}).
		Where(goqu.C("id").Eq(id), notReturned))
	if err != nil {
		return apperr.Transient("failed to mark issue returned", err)
	}
	if n == 0 {
		return apperr.Conflict("issue %s is already returned", id)
	}
	return nil
}

// RecordNoticeSent stamps last_notice_sent. A missing issue is a no-op.
func (l *Ledger) RecordNoticeSent(ctx context.Context, q db.Querier, id uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, q, l.b.Update(tableIssues).
		Set(goqu.Record{"last_notice_sent": at}).
		Where(goqu.C("id").Eq(id)))
	if err != nil {
		return apperr.Transient("failed to record notice", err)
	}
	return nil
}

// RecordOverdueNotice counts one more overdue notice and stamps both
// last_notice_sent and last_overdue_notice. A missing issue is a no-op.
func (l *Ledger) RecordOverdueNotice(ctx context.Context, q db.Querier, id uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, q, l.b.Update(tableIssues).
		Set(goqu.Record{
			"overdue_notices_sent": goqu.L("overdue_notices_sent + 1"),
			"last_notice_sent":     at,
			"last_overdue_notice":  at,
		}).
		Where(goqu.C("id").Eq(id)))
	if err != nil {
		return apperr.Transient("failed to record overdue notice", err)
	}
	return nil
}

func (l *Ledger) detailQuery() *goqu.SelectDataset {
	return l.b.From(goqu.T(tableIssues).As("i")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("i.book_id")))).
		Join(goqu.T("students").As("s"), goqu.On(goqu.I("s.user_id").Eq(goqu.I("i.student_id")))).
		Select(
			goqu.I("i.id").As("id"),
			goqu.I("i.book_id").As("book_id"),
			goqu.I("i.student_id").As("student_id"),
			goqu.I("i.issue_date").As("issue_date"),
			goqu.I("i.due_date").As("due_date"),
			goqu.I("i.return_date").As("return_date"),
			goqu.I("i.returned").As("returned"),
			goqu.I("i.overdue_notices_sent").As("overdue_notices_sent"),
			goqu.I("i.last_notice_sent").As("last_notice_sent"),
			goqu.I("i.last_overdue_notice").As("last_overdue_notice"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.author").As("book_author"),
			goqu.I("s.name").As("student_name"),
			goqu.I("s.email").As("student_email"),
			goqu.I("s.roll_no").As("student_roll_no"),
		)
}

func (l *Ledger) selectDetails(ctx context.Context, q db.Querier, stmt *goqu.SelectDataset) ([]IssueDetail, error) {
	details := []IssueDetail{}
	if err := db.Select(ctx, q, &details, stmt); err != nil {
		return nil, apperr.Transient("failed to query issues", err)
	}
	for i := range details {
		details[i].normalize()
	}
	return details, nil
}

// GetDetail loads an issue joined with its book and student.
func (l *Ledger) GetDetail(ctx context.Context, q db.Querier, id uuid.UUID) (*IssueDetail, error) {
	details, err := l.selectDetails(ctx, q, l.detailQuery().Where(goqu.I("i.id").Eq(id)))
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, apperr.NotFound("issue %s not found", id)
	}
	return &details[0], nil
}

// List returns one page of issues, newest first, and the total ignoring
// pagination.
func (l *Ledger) List(ctx context.Context, q db.Querier, filter ListFilter) ([]IssueDetail, int, error) {
	var where []goqu.Expression
	if filter.Returned != nil {
		if *filter.Returned {
			where = append(where, goqu.L("i.returned"))
		} else {
			where = append(where, goqu.L("NOT i.returned"))
		}
	}
	if filter.StudentID != nil {
		where = append(where, goqu.I("i.student_id").Eq(*filter.StudentID))
	}

	var total int
	err := db.Get(ctx, q, &total, l.b.From(goqu.T(tableIssues).As("i")).Select(goqu.COUNT("*")).Where(where...))
	if err != nil {
		return nil, 0, apperr.Transient("failed to count issues", err)
	}

	stmt := l.detailQuery().
		Where(where...).
		Order(goqu.I("i.issue_date").Desc(), goqu.I("i.id").Desc()).
		Limit(uint(filter.Limit)).
		Offset(uint((filter.Page - 1) * filter.Limit))
	details, err := l.selectDetails(ctx, q, stmt)
	if err != nil {
		return nil, 0, err
	}
	return details, total, nil
}

// ListOverdue returns unreturned issues due before now, most overdue first.
func (l *Ledger) ListOverdue(ctx context.Context, q db.Querier, now time.Time) ([]IssueDetail, error) {
	return l.selectDetails(ctx, q, l.detailQuery().
		Where(goqu.L("NOT i.returned"), goqu.I("i.due_date").Lt(db.Timestamp(now))).
		Order(goqu.I("i.due_date").Asc(), goqu.I("i.id").Asc()))
}

// ListDueSoon returns unreturned issues with now < due <= until, soonest first.
func (l *Ledger) ListDueSoon(ctx context.Context, q db.Querier, now, until time.Time) ([]IssueDetail, error) {
	return l.selectDetails(ctx, q, l.detailQuery().
		Where(
			goqu.L("NOT i.returned"),
			goqu.I("i.due_date").Gt(db.Timestamp(now)),
			goqu.I("i.due_date").Lte(db.Timestamp(until)),
		).
		Order(goqu.I("i.due_date").Asc(), goqu.I("i.id").Asc()))
}
