// internal/circulation/implementation.go
package circulation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/apperr"
	"libradesk/internal/audit"
	"libradesk/internal/clock"
	"libradesk/internal/platform/db"
)

// service implements the Service interface.
type service struct {
	db        *db.DB
	ledger    *Ledger
	inventory Inventory
	students  Students
	events    *audit.Log
	clock     clock.Clock
	log       *slog.Logger
	tracer    trace.Tracer
}

// NewService creates a new circulation service instance.
func NewService(conn *db.DB, ledger *Ledger, inventory Inventory, students Students, events *audit.Log, clk clock.Clock, log *slog.Logger) Service {
	return &service{
		db:        conn,
		ledger:    ledger,
		inventory: inventory,
		students:  students,
		events:    events,
		clock:     clk,
		log:       log,
		tracer:    otel.Tracer("libradesk/circulation"),
	}
}

// IssueBook lends one copy of a book to a student. The issue row, the copy
// decrement and the audit event commit together or not at all.
func (s *service) IssueBook(ctx context.Context, bookID, studentID uuid.UUID, loanDays int) (*Issue, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.issue_book",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
			attribute.String("student.id", studentID.String()),
			attribute.Int("loan.days", loanDays),
		),
	)
	defer span.End()

	if loanDays < 1 {
		return nil, apperr.Validation("loan period must be at least 1 day, got %d", loanDays)
	}

	var issue *Issue
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		book, err := s.inventory.GetBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if _, err := s.students.GetStudentByUserID(ctx, tx, studentID); err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return apperr.Conflict("no copies of %q available", book.Title)
		}

		active, err := s.ledger.HasActive(ctx, tx, bookID, studentID)
		if err != nil {
			return err
		}
		if active {
			return apperr.Conflict("student %s already has an unreturned copy of %q", studentID, book.Title)
		}

		now := db.Timestamp(s.clock.Now())
		issue = &Issue{
			ID:        uuid.New(),
			BookID:    bookID,
			StudentID: studentID,
			IssueDate: now,
			DueDate:   now.AddDate(0, 0, loanDays),
		}
		if err := s.ledger.Insert(ctx, tx, issue); err != nil {
			return err
		}
		if err := s.inventory.AdjustAvailableCopies(ctx, tx, bookID, -1); err != nil {
			return err
		}

		event, err := audit.NewEvent(EventIssueCreated, issueCreatedPayload{
			IssueID:   issue.ID,
			BookID:    bookID,
			StudentID: studentID,
			IssueDate: issue.IssueDate,
			DueDate:   issue.DueDate,
		})
		if err != nil {
			return err
		}
		return s.events.Append(ctx, tx, issue.ID, 0, now, event)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.log.Info("book issued",
		"issue_id", issue.ID,
		"book_id", bookID,
		"student_id", studentID,
		"due_date", issue.DueDate,
	)
	return issue, nil
}

// ReturnBook closes an issue and puts its copy back on the shelf.
func (s *service) ReturnBook(ctx context.Context, issueID uuid.UUID) (*Issue, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_book",
		trace.WithAttributes(attribute.String("issue.id", issueID.String())),
	)
	defer span.End()

	var issue *Issue
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		var err error
		issue, err = s.ledger.Get(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if issue.Returned {
			return apperr.Conflict("issue %s is already returned", issueID)
		}

		now := db.Timestamp(s.clock.Now())
		if err := s.ledger.MarkReturned(ctx, tx, issueID, now); err != nil {
			return err
		}
		if err := s.inventory.AdjustAvailableCopies(ctx, tx, issue.BookID, +1); err != nil {
			return err
		}

		version, err := s.events.CurrentVersion(ctx, tx, issueID)
		if err != nil {
			return err
		}
		event, err := audit.NewEvent(EventIssueReturned, issueReturnedPayload{
			IssueID:    issueID,
			BookID:     issue.BookID,
			StudentID:  issue.StudentID,
			ReturnDate: now,
			Overdue:    issue.IsOverdue(now),
		})
		if err != nil {
			return err
		}
		if err := s.events.Append(ctx, tx, issueID, version, now, event); err != nil {
			return err
		}

		issue.Returned = true
		issue.ReturnDate = &now
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.log.Info("book returned", "issue_id", issueID, "book_id", issue.BookID, "student_id", issue.StudentID)
	return issue, nil
}

// GetIssue retrieves an issue with its book and student details.
func (s *service) GetIssue(ctx context.Context, issueID uuid.UUID) (*IssueDetail, error) {
	return s.ledger.GetDetail(ctx, s.db, issueID)
}

// History returns the audit trail of an issue.
func (s *service) History(ctx context.Context, issueID uuid.UUID) ([]audit.Event, error) {
	if _, err := s.ledger.Get(ctx, s.db, issueID); err != nil {
		return nil, err
	}
	return s.events.LoadEvents(ctx, s.db, issueID)
}

// ListIssues returns one page of issues ordered by issue date, newest first.
func (s *service) ListIssues(ctx context.Context, filter ListFilter) (*Page, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	issues, total, err := s.ledger.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	return &Page{
		Issues:     issues,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

// ListStudentIssues returns one page of a student's issues. An unknown
// student is NotFound rather than an empty page.
func (s *service) ListStudentIssues(ctx context.Context, studentID uuid.UUID, filter ListFilter) (*Page, error) {
	if _, err := s.students.GetStudentByUserID(ctx, s.db, studentID); err != nil {
		return nil, err
	}
	filter.StudentID = &studentID
	return s.ListIssues(ctx, filter)
}

// ListOverdue returns every unreturned issue past its due date.
func (s *service) ListOverdue(ctx context.Context) ([]IssueDetail, error) {
	return s.ledger.ListOverdue(ctx, s.db, s.clock.Now())
}

// ListDueSoon returns unreturned issues due within windowDays.
func (s *service) ListDueSoon(ctx context.Context, windowDays int) ([]IssueDetail, error) {
	if windowDays < 1 {
		return nil, apperr.Validation("due-soon window must be at least 1 day, got %d", windowDays)
	}
	now := s.clock.Now()
	return s.ledger.ListDueSoon(ctx, s.db, now, now.Add(time.Duration(windowDays)*day))
}

func (s *service) RecordNoticeSent(ctx context.Context, issueID uuid.UUID, at time.Time) error {
	return s.ledger.RecordNoticeSent(ctx, s.db, issueID, db.Timestamp(at))
}

func (s *service) RecordOverdueNotice(ctx context.Context, issueID uuid.UUID, at time.Time) error {
	return s.ledger.RecordOverdueNotice(ctx, s.db, issueID, db.Timestamp(at))
}
