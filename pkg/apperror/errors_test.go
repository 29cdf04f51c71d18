package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := New("CON_001", "Account was modified by a concurrent operation", http.StatusConflict)
	assert.Equal(t, "[CON_001] Account was modified by a concurrent operation", e.Error())

	wrapped := Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, errors.New("connection refused"))
	assert.Equal(t, "[SYS_001] Internal database error: connection refused", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	e := ErrDatabaseError(inner)

	assert.ErrorIs(t, e, inner)
	assert.Nil(t, errors.Unwrap(ErrVersionConflict()))
}

func TestAppError_WithContext(t *testing.T) {
	e := ErrInsufficientBalance().WithContext(map[string]any{
		"account_id": "a1",
		"required":   "40",
		"available":  "25",
	})

	assert.Equal(t, "VAL_005", e.Code)
	assert.Equal(t, "40", e.Context["required"])
	assert.Equal(t, "25", e.Context["available"])
}

func TestAppError_As(t *testing.T) {
	var appErr *AppError
	err := fmt.Errorf("commit: %w", ErrOperationInProgress())

	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CON_002", appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestErrorCatalogStatuses(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
	}{
		{ErrValidationFailed(), http.StatusUnprocessableEntity},
		{ErrAccountNotFound(), http.StatusNotFound},
		{ErrInvalidCreditSplit(), http.StatusUnprocessableEntity},
		{ErrVersionConflict(), http.StatusConflict},
		{ErrOperationInProgress(), http.StatusConflict},
		{ErrInsufficientAvailable(), http.StatusUnprocessableEntity},
		{ErrTransferAlreadyResolved(), http.StatusConflict},
		{ErrInvalidCredentials(), http.StatusUnauthorized},
		{ErrOperatorSuspended(), http.StatusForbidden},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.HTTPStatus, tc.err.Code)
	}
}
