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
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
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

// Code extracts the AppError code from err, or "" if err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Wallet Business Logic (WAL) ----

// Error codes for the wallet ledger. Consumers branch on these codes
// (via the Is* helpers), never on message text.
const (
	CodeInsufficientBalance = "WAL_001"
	CodeInvalidAmount       = "WAL_002"
	CodeWalletNotFound      = "WAL_003"
	CodeTransactionNotFound = "WAL_004"
	CodeAlreadyRefunded     = "WAL_005"
	CodeInvalidRefund       = "WAL_006"
	CodeInvalidSettings     = "WAL_007"
	CodeDuplicateKey        = "WAL_008"
	CodeLockNotAcquired     = "LCK_001"
)

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Invalid amount", http.StatusBadRequest)
}

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrTransactionNotFound() *AppError {
	return New(CodeTransactionNotFound, "Transaction not found", http.StatusNotFound)
}

func ErrAlreadyRefunded() *AppError {
	return New(CodeAlreadyRefunded, "Transaction has already been refunded", http.StatusConflict)
}

func ErrInvalidRefund() *AppError {
	return New(CodeInvalidRefund, "Original transaction not eligible for refund", http.StatusBadRequest)
}

func ErrInvalidSettings(message string) *AppError {
	return New(CodeInvalidSettings, message, http.StatusBadRequest)
}

func ErrDuplicateIdempotencyKey() *AppError {
	return New(CodeDuplicateKey, "Idempotency key already used with a different request", http.StatusConflict)
}

// IsInsufficientBalance reports whether err is the insufficient-balance
// outcome. This is the signal consumer workflows branch on to choose the
// pending-payment path instead of failing the whole operation.
func IsInsufficientBalance(err error) bool {
	return Code(err) == CodeInsufficientBalance
}

// ---- Distributed Lock (LCK) ----

func ErrLockNotAcquired(key string) *AppError {
	return New(CodeLockNotAcquired, fmt.Sprintf("Could not acquire lock %q", key), http.StatusServiceUnavailable)
}

// IsLockNotAcquired reports whether err is a lock acquisition timeout.
// Safe to retry the whole operation: no state was mutated.
func IsLockNotAcquired(err error) bool {
	return Code(err) == CodeLockNotAcquired
}

// ---- Disputes (DSP) ----

const (
	CodeDisputeNotFound = "DSP_001"
	CodeDisputeResolved = "DSP_002"
	CodeInvalidOutcome  = "DSP_003"
)

func ErrDisputeNotFound() *AppError {
	return New(CodeDisputeNotFound, "Dispute not found", http.StatusNotFound)
}

func ErrDisputeAlreadyResolved() *AppError {
	return New(CodeDisputeResolved, "Dispute has already been resolved", http.StatusConflict)
}

func ErrInvalidOutcome(outcome string) *AppError {
	return New(CodeInvalidOutcome, fmt.Sprintf("Unknown dispute outcome %q", outcome), http.StatusBadRequest)
}

// ---- Payments (PAY) ----

const CodePaymentCapture = "PAY_001"

func ErrPaymentCaptureFailed(err error) *AppError {
	return Wrap(CodePaymentCapture, "Payment capture failed", http.StatusBadGateway, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

const (
	CodeInternal   = "SYS_001"
	CodeValidation = "VAL_001"
)

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}
