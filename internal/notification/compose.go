package notification

import (
	"fmt"
	"strings"
)

const signature = "Library Management System"

// Compose renders the reminder for an overdue or due-soon event.
func Compose(ev Event) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", ev.StudentName)

	due := ev.DueDate.Format("2006-01-02")
	if ev.Category == CategoryOverdue {
		if ev.Days > 0 {
			fmt.Fprintf(&b, "The book %q by %s is now %s overdue.\n", ev.BookTitle, ev.BookAuthor, pluralDays(ev.Days))
		} else {
			fmt.Fprintf(&b, "The book %q by %s is now overdue.\n", ev.BookTitle, ev.BookAuthor)
		}
		b.WriteString("Please return it to the library as soon as possible to avoid penalties.\n\n")
		fmt.Fprintf(&b, "Original due date: %s\n\n", due)
	} else {
		if ev.Days > 0 {
			fmt.Fprintf(&b, "This is a friendly reminder that the book %q is due in %s.\n", ev.BookTitle, pluralDays(ev.Days))
		} else {
			fmt.Fprintf(&b, "This is a friendly reminder that the book %q is due within a day.\n", ev.BookTitle)
		}
		fmt.Fprintf(&b, "Please return it by %s.\n\n", due)
	}
	b.WriteString(signature)

	return Message{
		To:        ev.Recipient,
		Subject:   "Book Return Reminder: " + ev.BookTitle,
		Body:      b.String(),
		Category:  ev.Category,
		StudentID: ev.StudentID,
		IssueID:   ev.IssueID,
	}
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
