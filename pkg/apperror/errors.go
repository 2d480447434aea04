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

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Security & Authentication (SEC) ----

func ErrMissingCredentials() *AppError {
	return New("SEC_001", "Missing authentication headers", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

func ErrUnknownParticipant() *AppError {
	return New("SEC_005", "Unknown participant", http.StatusUnauthorized)
}

func ErrParticipantMismatch() *AppError {
	return New("SEC_006", "Participant is not a party to this payment", http.StatusForbidden)
}

// ---- QR Settlement (QR) ----

func ErrUnknownMerchant() *AppError {
	return New("QR_001", "Merchant not found or inactive", http.StatusNotFound)
}

func ErrUnsupportedCurrency() *AppError {
	return New("QR_002", "Unsupported currency", http.StatusBadRequest)
}

func ErrInvalidExpiry() *AppError {
	return New("QR_003", "Expiry outside the permitted range", http.StatusBadRequest)
}

func ErrInvalidChannel() *AppError {
	return New("QR_004", "Unknown redemption channel", http.StatusBadRequest)
}

func ErrSigningFailure(err error) *AppError {
	return Wrap("QR_005", "Failed to sign QR payload", http.StatusInternalServerError, err)
}

// ---- Payment Business Logic (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New("PAY_001", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrDuplicateTransaction() *AppError {
	return New("PAY_003", "Duplicate transaction", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrIdempotencyMismatch() *AppError {
	return New("PAY_005", "Request id reused with a different payload", http.StatusConflict)
}

func ErrNoRoute() *AppError {
	return New("PAY_006", "No route available for creditor participant", http.StatusUnprocessableEntity)
}

func ErrCurrencyMismatch() *AppError {
	return New("PAY_007", "Currency does not match wallet", http.StatusUnprocessableEntity)
}

func ErrWalletUnavailable() *AppError {
	return New("PAY_008", "Wallet is not active", http.StatusUnprocessableEntity)
}

func ErrInvalidStatus() *AppError {
	return New("PAY_009", "Unrecognised payment status", http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

func ErrUpstreamUnavailable(err error) *AppError {
	return Wrap("SYS_004", "Upstream participant unavailable", http.StatusBadGateway, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New("PAY_002", message, http.StatusBadRequest)
}
