package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/apperr"
	"libradesk/internal/logger"
)

type issueRequest struct {
	BookID    string `json:"book_id" validate:"required,uuid"`
	StudentID string `json:"student_id" validate:"required,uuid"`
	Days      int    `json:"days_to_return" validate:"omitempty,min=1"`
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
			`{"book_id":"6f1c1c1e-9a0c-4a8e-9d55-0a5b8e7c1a11","student_id":"0b8f0a39-6c1e-4a9d-8f0e-3c0c5d2f7b22"}`))
		var req issueRequest
		require.NoError(t, DecodeAndValidate(r, &req))
		assert.Zero(t, req.Days)
	})

	t.Run("field errors use json names", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"book_id":"nope","days_to_return":-1}`))
		var req issueRequest
		err := DecodeAndValidate(r, &req)
		require.ErrorIs(t, err, apperr.ErrValidation)
		assert.Contains(t, err.Error(), "book_id must be a valid UUID")
		assert.Contains(t, err.Error(), "student_id is required")
		assert.Contains(t, err.Error(), "days_to_return must be at least 1")
	})

	t.Run("malformed json", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var req issueRequest
		assert.ErrorIs(t, DecodeAndValidate(r, &req), apperr.ErrValidation)
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		var req issueRequest
		assert.ErrorIs(t, DecodeAndValidate(r, &req), apperr.ErrValidation)
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperr.NotFound("book %s not found", "x"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", apperr.Conflict("no copies available"), http.StatusConflict, "CONFLICT"},
		{"transient", apperr.Transient("query issues", errors.New("conn reset")), http.StatusServiceUnavailable, "TRANSIENT_IO"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, logger.Discard(), tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotContains(t, body.Error.Message, "conn reset")
		})
	}
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/issues?page=3&is_returned=false&limit=x", nil)

	page, err := QueryInt(r, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	def, err := QueryInt(r, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, def)

	_, err = QueryInt(r, "limit", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	returned, err := QueryBool(r, "is_returned")
	require.NoError(t, err)
	require.NotNil(t, returned)
	assert.False(t, *returned)

	absent, err := QueryBool(r, "other")
	require.NoError(t, err)
	assert.Nil(t, absent)
}
