// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"
)

// Student is a library user allowed to borrow books.
type Student struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	RollNo    string    `json:"roll_no" db:"roll_no"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Credential holds a student's salted password hash.
type Credential struct {
	UserID       uuid.UUID `db:"user_id"`
	PasswordHash string    `db:"password_hash"`
	Salt         string    `db:"salt"`
}
