package circulation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"libradesk/internal/apperr"
)

// Any sequence of issue/return calls keeps
// available_copies == total_copies - unreturned issues, within [0, total].
func TestCopyCountsMatchUnreturnedIssues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.IntRange(0, 3).Draw(rt, "total")
		book := f.addBook(total)
		students := []uuid.UUID{
			f.addStudent("p1").UserID,
			f.addStudent("p2").UserID,
			f.addStudent("p3").UserID,
			f.addStudent("p4").UserID,
		}
		active := map[uuid.UUID]uuid.UUID{} // student -> open issue

		steps := rapid.SliceOfN(rapid.IntRange(0, 7), 1, 25).Draw(rt, "steps")
		for _, step := range steps {
			student := students[step%len(students)]
			if step < len(students) {
				issue, err := f.svc.IssueBook(ctx, book.ID, student, 14)
				if err == nil {
					if _, dup := active[student]; dup {
						rt.Fatalf("second active issue for student %s", student)
					}
					active[student] = issue.ID
				} else if apperr.CodeOf(err) != apperr.CodeConflict {
					rt.Fatalf("issue: unexpected error %v", err)
				}
			} else if issueID, ok := active[student]; ok {
				if _, err := f.svc.ReturnBook(ctx, issueID); err != nil {
					rt.Fatalf("return: %v", err)
				}
				delete(active, student)
			}

			open, err := f.ledger.CountActive(ctx, f.db, book.ID)
			if err != nil {
				rt.Fatalf("count: %v", err)
			}
			available := f.available(book.ID)
			if available != total-open {
				rt.Fatalf("available=%d, want total(%d)-unreturned(%d)", available, total, open)
			}
			if available < 0 || available > total {
				rt.Fatalf("available=%d outside [0,%d]", available, total)
			}
			if open != len(active) {
				rt.Fatalf("ledger has %d open issues, model has %d", open, len(active))
			}
		}
	})
}
