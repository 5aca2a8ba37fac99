package notification

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"libradesk/internal/apperr"
	"libradesk/internal/platform/db"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const tableNotifications = "notifications"

var recordColumns = []any{
	"id", "student_id", "issue_id", "type", "recipient", "subject",
	"message", "status", "error", "is_read", "created_at",
}

// Store persists notification records.
type Store struct {
	db *db.DB
}

func NewStore(conn *db.DB) *Store {
	return &Store{db: conn}
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

// Save inserts a record.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	_, err := db.Exec(ctx, s.db, s.db.Builder.Insert(tableNotifications).Rows(goqu.Record{
		"id":         rec.ID,
		"student_id": nullableID(rec.StudentID),
		"issue_id":   nullableID(rec.IssueID),
		"type":       string(rec.Type),
		"recipient":  rec.Recipient,
		"subject":    rec.Subject,
		"message":    rec.Message,
		"status":     string(rec.Status),
		"error":      rec.Error,
		"is_read":    goqu.L("FALSE"),
		"created_at": db.Timestamp(rec.CreatedAt),
	}))
	if err != nil {
		return apperr.Transient("failed to save notification", err)
	}
	return nil
}

// ListForStudent returns a student's notifications, newest first.
func (s *Store) ListForStudent(ctx context.Context, studentID uuid.UUID, unreadOnly bool) ([]Record, error) {
	stmt := s.db.Builder.From(tableNotifications).
		Select(recordColumns...).
		Where(goqu.C("student_id").Eq(studentID)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	if unreadOnly {
		stmt = stmt.Where(goqu.L("NOT is_read"))
	}

	records := []Record{}
	if err := db.Select(ctx, s.db, &records, stmt); err != nil {
		return nil, apperr.Transient("failed to list notifications", err)
	}
	for i := range records {
		records[i].CreatedAt = records[i].CreatedAt.UTC()
	}
	return records, nil
}

// MarkRead flags a notification as read.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	n, err := db.Exec(ctx, s.db, s.db.Builder.Update(tableNotifications).
		Set(goqu.Record{"is_read": goqu.L("TRUE")}).
		Where(goqu.C("id").Eq(id)))
	if err != nil {
		return apperr.Transient("failed to mark notification read", err)
	}
	if n == 0 {
		return apperr.NotFound("notification %s not found", id)
	}
	return nil
}

// CountUnread returns how many of a student's notifications are unread.
func (s *Store) CountUnread(ctx context.Context, studentID uuid.UUID) (int, error) {
	var n int
	err := db.Get(ctx, s.db, &n, s.db.Builder.From(tableNotifications).
		Select(goqu.COUNT("*")).
		Where(goqu.C("student_id").Eq(studentID), goqu.L("NOT is_read")))
	if err != nil {
		return 0, apperr.Transient("failed to count unread notifications", err)
	}
	return n, nil
}

// MarkAllRead flags every unread notification of a student as read and
// returns how many changed.
func (s *Store) MarkAllRead(ctx context.Context, studentID uuid.UUID) (int64, error) {
	n, err := db.Exec(ctx, s.db, s.db.Builder.Update(tableNotifications).
		Set(goqu.Record{"is_read": goqu.L("TRUE")}).
		Where(goqu.C("student_id").Eq(studentID), goqu.L("NOT is_read")))
	if err != nil {
		return 0, apperr.Transient("failed to mark notifications read", err)
	}
	return n, nil
}

func newRecord(id string, msg Message, status Status, sendErr error, at time.Time) *Record {
	rec := &Record{
		ID:        id,
		Type:      msg.Category,
		Recipient: msg.To,
		Subject:   msg.Subject,
		Message:   msg.Body,
		Status:    status,
		CreatedAt: at,
	}
	if msg.StudentID != uuid.Nil {
		sid := msg.StudentID
		rec.StudentID = &sid
	}
	if msg.IssueID != uuid.Nil {
		iid := msg.IssueID
		rec.IssueID = &iid
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	return rec
}
