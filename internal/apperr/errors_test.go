package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Conflict("no available copies of book %s", "b1")

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("issue book: %w", err), ErrConflict)
	assert.Equal(t, "no available copies of book b1", err.Error())
}

func TestTransient(t *testing.T) {
	t.Run("wraps driver errors", func(t *testing.T) {
		err := Transient("query issues", sql.ErrConnDone)

		assert.ErrorIs(t, err, ErrTransientIO)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.Equal(t, CodeTransientIO, CodeOf(err))
	})

	t.Run("keeps coded errors", func(t *testing.T) {
		err := Transient("query issues", NotFound("issue not found"))

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrTransientIO)
	})

	t.Run("nil cause", func(t *testing.T) {
		assert.NoError(t, Transient("query issues", nil))
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeValidation, http.StatusBadRequest},
		{CodeTransientIO, http.StatusServiceUnavailable},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeConfig, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}
