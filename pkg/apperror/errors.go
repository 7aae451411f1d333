package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"` // Machine-readable reason code (fraud verdicts)
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *AppError) Unwrap() error {
	return e.Err
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

// CodeOf returns the AppError code carried by err, or "" when err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given AppError code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

const (
	CodeInsufficientFunds    = "PAY_001"
	CodeInvalidAmount        = "PAY_002"
	CodeInvalidRecipient     = "PAY_003"
	CodeNotFound             = "PAY_004"
	CodeOverTransactionLimit = "PAY_005"
	CodeDuplicateAccount     = "PAY_006"
	CodeDuplicateTransaction = "PAY_007"
	CodeRequestResolved      = "PAY_008"
	CodeInsufficientUnits    = "INV_001"
	CodeFraudBlocked         = "FRD_001"
	CodeStepUpRequired       = "FRD_002"
	CodeInvalidToken         = "AUTH_003"
	CodeRateLimitExceeded    = "RATE_001"
	CodeInternal             = "SYS_001"
)

// ---- Ledger & Transfers (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Invalid amount", http.StatusBadRequest)
}

func ErrInvalidRecipient() *AppError {
	return New(CodeInvalidRecipient, "Invalid recipient", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrOverTransactionLimit() *AppError {
	e := New(CodeOverTransactionLimit, "Transaction limit exceeded", http.StatusUnprocessableEntity)
	e.Reason = "over_limit"
	return e
}

func ErrDuplicateAccount() *AppError {
	return New(CodeDuplicateAccount, "Account already exists", http.StatusConflict)
}

// ErrDuplicateTransaction is returned while another request holding the same
// idempotency key is still being processed.
func ErrDuplicateTransaction() *AppError {
	return New(CodeDuplicateTransaction, "Duplicate transaction in progress", http.StatusConflict)
}

func ErrRequestResolved() *AppError {
	return New(CodeRequestResolved, "Money request already resolved", http.StatusConflict)
}

// ---- Investments (INV) ----

func ErrInsufficientUnits() *AppError {
	return New(CodeInsufficientUnits, "Insufficient units in position", http.StatusUnprocessableEntity)
}

// ---- Fraud screening (FRD) ----

// ErrFraudBlocked is returned when a transfer is flagged by the fraud heuristics.
func ErrFraudBlocked(reason string) *AppError {
	e := New(CodeFraudBlocked, "Transfer blocked by fraud screening", http.StatusForbidden)
	e.Reason = reason
	return e
}

// ErrStepUpRequired is recoverable: the caller resubmits with a step-up token.
func ErrStepUpRequired(reason string) *AppError {
	e := New(CodeStepUpRequired, "Additional confirmation required", http.StatusPreconditionRequired)
	e.Reason = reason
	return e
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}
