package circulation

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/logger"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	NewHandler(f.svc, HandlerConfig{DefaultLoanDays: 14, DueSoonDays: 5}, logger.Discard()).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlerIssueLifecycle(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	book := f.addBook(1)
	student := f.addStudent("june")

	w := do(t, h, http.MethodPost, "/issues",
		fmt.Sprintf(`{"book_id":%q,"student_id":%q}`, book.ID, student.UserID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var issue Issue
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &issue))
	assert.True(t, issue.DueDate.Equal(epoch.AddDate(0, 0, 14)), "default loan period applies")

	w = do(t, h, http.MethodPost, "/issues",
		fmt.Sprintf(`{"book_id":%q,"student_id":%q}`, book.ID, f.addStudent("kim").UserID))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"CONFLICT"`)

	w = do(t, h, http.MethodGet, "/issues/"+issue.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"student_name":"june"`)

	w = do(t, h, http.MethodPut, "/issues/"+issue.ID.String()+"/return", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_returned":true`)

	w = do(t, h, http.MethodPut, "/issues/"+issue.ID.String()+"/return", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, "/issues/"+issue.ID.String()+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "IssueReturned")
}

func TestHandlerListing(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	student := f.addStudent("lee")
	for i := 0; i < 3; i++ {
		_, err := f.svc.IssueBook(t.Context(), f.addBook(1).ID, student.UserID, 3+i)
		require.NoError(t, err)
	}
	f.clock.Advance(4 * 24 * time.Hour)

	w := do(t, h, http.MethodGet, "/issues?page=1&limit=2&is_returned=false", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page Page
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Issues, 2)

	w = do(t, h, http.MethodGet, "/issues/overdue", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = do(t, h, http.MethodGet, "/issues/due-soon?days=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = do(t, h, http.MethodGet, "/students/"+student.UserID.String()+"/issues?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	page = Page{}
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Issues, 2)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/students/"+uuid.NewString()+"/issues", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/students/x/issues", "").Code)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/issues?page=9223372036854775807", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/issues?limit=500", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/issues?is_returned=maybe", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/issues/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/issues/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/issues", `{"book_id":"x"}`).Code)
}
