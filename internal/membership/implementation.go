// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"libradesk/internal/apperr"
	"libradesk/internal/clock"
	"libradesk/internal/platform/db"
)

var errInvalidCredentials = errors.New("invalid credentials")

// Option configures the membership service.
type Option func(*service)

// WithRateLimit overrides the registration and login limiter.
func WithRateLimit(every time.Duration, burst int) Option {
	return func(s *service) {
		s.rateLimiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// service implements the Service interface.
type service struct {
	db          *db.DB
	store       *Store
	clock       clock.Clock
	log         *slog.Logger
	rateLimiter *rate.Limiter
}

// NewService creates a new membership service instance.
func NewService(conn *db.DB, store *Store, clk clock.Clock, log *slog.Logger, opts ...Option) Service {
	s := &service{
		db:          conn,
		store:       store,
		clock:       clk,
		log:         log,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 requests per minute
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterStudent creates a student and their credentials atomically.
func (s *service) RegisterStudent(ctx context.Context, email, name, rollNo, password string) (*Student, error) {
	if !s.rateLimiter.Allow() {
		return nil, apperr.RateLimited("too many registration attempts")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(name) == "" || strings.TrimSpace(rollNo) == "" {
		return nil, apperr.Validation("email, name and roll_no are required")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("password must be at least 8 characters")
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	student := &Student{
		UserID:    uuid.New(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		RollNo:    strings.TrimSpace(rollNo),
		CreatedAt: db.Timestamp(s.clock.Now()),
	}
	cred := &Credential{
		UserID:       student.UserID,
		PasswordHash: passwordHash,
		Salt:         salt,
	}

	err = s.db.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		return s.store.Insert(ctx, tx, student, cred)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("student registered", "user_id", student.UserID, "roll_no", student.RollNo)
	return student, nil
}

// Authenticate verifies a student's credentials and returns the student if successful.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Student, error) {
	if !s.rateLimiter.Allow() {
		return nil, apperr.RateLimited("too many login attempts")
	}

	student, err := s.store.GetStudentByEmail(ctx, s.db, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("authentication failed: %v", errInvalidCredentials)
		}
		return nil, err
	}

	cred, err := s.store.getCredential(ctx, s.db, student.UserID)
	if err != nil {
		return nil, err
	}

	ok, err := verifyPassword(password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, apperr.Validation("authentication failed: %v", errInvalidCredentials)
	}

	return student, nil
}

// GetStudentByUserID retrieves a student by their user ID.
func (s *service) GetStudentByUserID(ctx context.Context, id uuid.UUID) (*Student, error) {
	return s.store.GetStudentByUserID(ctx, s.db, id)
}
