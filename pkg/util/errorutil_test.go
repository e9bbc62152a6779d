package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ToDomainError(nil))
		assert.NoError(t, MapError(nil))
	})

	t.Run("domain error passes through wrapping", func(t *testing.T) {
		orig := NewForbidden("nope")
		wrapped := fmt.Errorf("handler: %w", orig)
		de := ToDomainError(wrapped)
		require.NotNil(t, de)
		assert.Equal(t, CodeForbidden, de.Code)
		assert.Equal(t, http.StatusForbidden, de.HTTPStatus)
	})

	t.Run("no rows becomes not found", func(t *testing.T) {
		de := ToDomainError(fmt.Errorf("query: %w", pgx.ErrNoRows))
		assert.Equal(t, CodeNotFound, de.Code)
		assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
	})

	t.Run("unknown error becomes internal", func(t *testing.T) {
		cause := errors.New("disk on fire")
		de := ToDomainError(cause)
		assert.Equal(t, CodeInternal, de.Code)
		assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
		assert.ErrorIs(t, de, cause)
	})
}

func TestHasCode(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("ticket", nil)))
	assert.True(t, IsConflict(NewConflict("taken", nil)))
	assert.True(t, IsValidation(NewValidationError("bad", nil)))
	assert.True(t, IsForbidden(fmt.Errorf("x: %w", NewForbidden("no"))))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsConflict(NewNotFound("ticket", nil)))
}

func TestNewNotFoundMessage(t *testing.T) {
	err := NewNotFound("ticket", map[string]any{"ticket_id": "abc"})
	de := ToDomainError(err)
	assert.Equal(t, "ticket not found", de.Message)
	assert.Equal(t, "abc", de.Details["ticket_id"])
}
