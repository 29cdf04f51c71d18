package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string         `json:"error_code"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext attaches context fields (which account, required vs
// available, whose version won) for user-actionable error rendering.
func (e *AppError) WithContext(ctx map[string]any) *AppError {
	e.Context = ctx
	return e
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation violations (VAL) ----
// Expected, user-facing, non-fatal. Safe to render directly.

func ErrValidationFailed() *AppError {
	return New("VAL_000", "Operation failed validation", http.StatusUnprocessableEntity)
}

func ErrAccountNotFound() *AppError {
	return New("VAL_003", "Account not found", http.StatusNotFound)
}

func ErrInsufficientBalance() *AppError {
	return New("VAL_005", "Insufficient account balance", http.StatusUnprocessableEntity)
}

func ErrAccountInoperable() *AppError {
	return New("VAL_006", "Account is not operable", http.StatusUnprocessableEntity)
}

func ErrInvalidCreditSplit() *AppError {
	return New("VAL_008", "Declared credit portion cannot be honored", http.StatusUnprocessableEntity)
}

// ---- Concurrency conflicts (CON) ----
// A subtype of validation violations caused by a stale version or lock
// contention. Always safe to retry after refreshing state.

func ErrVersionConflict() *AppError {
	return New("CON_001", "Account was modified by a concurrent operation", http.StatusConflict)
}

func ErrOperationInProgress() *AppError {
	return New("CON_002", "Another operation on this account is in progress", http.StatusConflict)
}

// ---- Transit transfers (TRF) ----

func ErrInsufficientAvailable() *AppError {
	return New("TRF_001", "Insufficient available wallet balance", http.StatusUnprocessableEntity)
}

func ErrTransferAlreadyResolved() *AppError {
	return New("TRF_002", "Transfer has already been resolved", http.StatusConflict)
}

func ErrTransferNotFound() *AppError {
	return New("TRF_003", "Transfer not found", http.StatusNotFound)
}

func ErrWalletNotFound() *AppError {
	return New("TRF_004", "Wallet not found", http.StatusNotFound)
}

// ---- Promotional credits (PRM) ----

func ErrCreditNotFound() *AppError {
	return New("PRM_001", "Promotional credit not found", http.StatusNotFound)
}

func ErrCreditFinalized() *AppError {
	return New("PRM_002", "Promotional credit is already finalized", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrOperatorSuspended() *AppError {
	return New("AUTH_004", "Operator account is suspended", http.StatusForbidden)
}

// ---- System & Infrastructure (SYS) ----
// Fatal for the current operation; surfaced distinctly from business
// violations so a connectivity failure is never mistaken for
// "insufficient balance".

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request-shape validation error.
func Validation(message string) *AppError {
	return New("VAL_400", message, http.StatusBadRequest)
}
