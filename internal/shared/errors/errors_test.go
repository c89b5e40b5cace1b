package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback string
		want     string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error", err: NewNotFoundError("ticket not found"), want: "ticket not found"},
		{name: "app error with details", err: NewValidationError("invalid ticket", "title is required"), want: "invalid ticket: title is required"},
		{name: "wrapped app error", err: fmt.Errorf("update: %w", NewConflictError("stale row")), want: "stale row"},
		{name: "deadline", err: fmt.Errorf("select: %w", context.DeadlineExceeded), want: "request timed out"},
		{name: "plain error with fallback", err: fmt.Errorf("connection refused"), fallback: "Failed to fetch tickets", want: "Failed to fetch tickets: connection refused"},
		{name: "plain error without fallback", err: fmt.Errorf("boom"), want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err, tt.fallback))
		})
	}
}

func TestConstructorsSetCodes(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewValidationError("x").Code)
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("x").Code)
	assert.Equal(t, http.StatusServiceUnavailable, NewUnavailableError("x").Code)
	assert.True(t, IsNotFoundError(fmt.Errorf("wrap: %w", NewNotFoundError("x"))))
	assert.False(t, IsValidationError(fmt.Errorf("plain")))
}

func TestIsDuplicateError(t *testing.T) {
	assert.True(t, IsDuplicateError(fmt.Errorf("Error 1062: Duplicate entry 'a' for key 'email'")))
	assert.True(t, IsDuplicateError(fmt.Errorf("UNIQUE constraint failed: users.email")))
	assert.False(t, IsDuplicateError(nil))
	assert.False(t, IsDuplicateError(fmt.Errorf("timeout")))
}
