// Package notification composes overdue and due-soon reminders and delivers
// them asynchronously, keeping a record of every delivery attempt.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies a reminder.
type Category string

const (
	CategoryOverdue Category = "overdue"
	CategoryDueSoon Category = "due_soon"
	CategoryGeneral Category = "general"
)

// Event is what the sweep hands over for one issue: an overdue or due-soon
// classification plus the details needed to address the student.
type Event struct {
	IssueID     uuid.UUID
	StudentID   uuid.UUID
	Category    Category
	Days        int // overdue: days past due; due-soon: days remaining
	Recipient   string
	StudentName string
	BookTitle   string
	BookAuthor  string
	DueDate     time.Time
}

// Message is one outgoing notification.
type Message struct {
	To        string
	Subject   string
	Body      string
	Category  Category
	StudentID uuid.UUID
	IssueID   uuid.UUID
}

// Status of a delivery attempt.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Record is the persisted outcome of one message.
type Record struct {
	ID        string     `json:"id" db:"id"`
	StudentID *uuid.UUID `json:"student_id,omitempty" db:"student_id"`
	IssueID   *uuid.UUID `json:"issue_id,omitempty" db:"issue_id"`
	Type      Category   `json:"type" db:"type"`
	Recipient string     `json:"recipient" db:"recipient"`
	Subject   string     `json:"subject" db:"subject"`
	Message   string     `json:"message" db:"message"`
	Status    Status     `json:"status" db:"status"`
	Error     string     `json:"error,omitempty" db:"error"`
	IsRead    bool       `json:"is_read" db:"is_read"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
