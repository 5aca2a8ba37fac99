// internal/membership/store.go
package membership

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libradesk/internal/apperr"
	"libradesk/internal/platform/db"
)

const (
	tableStudents    = "students"
	tableCredentials = "student_credentials"
)

var studentColumns = []any{"user_id", "email", "name", "roll_no", "created_at"}

// Store reads and writes students and their credentials.
type Store struct {
	b db.Builder
}

func NewStore(b db.Builder) *Store {
	return &Store{b: b}
}

// Insert writes the student and credential rows; run it inside a transaction.
func (s *Store) Insert(ctx context.Context, q db.Querier, student *Student, cred *Credential) error {
	_, err := db.Exec(ctx, q, s.b.Insert(tableStudents).Rows(goqu.Record{
		"user_id":    student.UserID,
		"email":      student.Email,
		"name":       student.Name,
		"roll_no":    student.RollNo,
		"created_at": student.CreatedAt,
	}))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("a student with email %s already exists", student.Email)
		}
		return apperr.Transient("failed to insert student", err)
	}

	_, err = db.Exec(ctx, q, s.b.Insert(tableCredentials).Rows(goqu.Record{
		"user_id":       cred.UserID,
		"password_hash": cred.PasswordHash,
		"salt":          cred.Salt,
	}))
	if err != nil {
		return apperr.Transient("failed to insert credentials", err)
	}
	return nil
}

// GetStudentByUserID loads a student by user id.
func (s *Store) GetStudentByUserID(ctx context.Context, q db.Querier, id uuid.UUID) (*Student, error) {
	return s.getStudent(ctx, q, goqu.C("user_id").Eq(id), id.String())
}

// GetStudentByEmail loads a student by email address.
func (s *Store) GetStudentByEmail(ctx context.Context, q db.Querier, email string) (*Student, error) {
	return s.getStudent(ctx, q, goqu.C("email").Eq(email), email)
}

func (s *Store) getStudent(ctx context.Context, q db.Querier, where goqu.Expression, key string) (*Student, error) {
	var student Student
	err := db.Get(ctx, q, &student, s.b.From(tableStudents).Select(studentColumns...).Where(where))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("student %s not found", key)
	}
	if err != nil {
		return nil, apperr.Transient("failed to get student", err)
	}
	student.CreatedAt = student.CreatedAt.UTC()
	return &student, nil
}

func (s *Store) getCredential(ctx context.Context, q db.Querier, id uuid.UUID) (*Credential, error) {
	var cred Credential
	err := db.Get(ctx, q, &cred, s.b.From(tableCredentials).
		Select("user_id", "password_hash", "salt").
		Where(goqu.C("user_id").Eq(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("credentials for %s not found", id)
	}
	if err != nil {
		return nil, apperr.Transient("failed to get credentials", err)
	}
	return &cred, nil
}
