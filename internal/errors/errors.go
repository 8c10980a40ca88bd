package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput           ErrorCode = "invalid_input"
	InvalidAmount          ErrorCode = "invalid_amount"
	InvalidAccountID       ErrorCode = "invalid_account_id"
	AccountNotFound        ErrorCode = "account_not_found"
	OwnerNotFound          ErrorCode = "owner_not_found"
	AccessDenied           ErrorCode = "access_denied"
	Unauthorized           ErrorCode = "unauthorized"
	InsufficientFunds      ErrorCode = "insufficient_funds"
	UpstreamUnavailable    ErrorCode = "upstream_unavailable"
	Conflict               ErrorCode = "conflict"
	DuplicateAccountNumber ErrorCode = "duplicate_account_number"
	InternalError          ErrorCode = "internal_error"
)

// GenericMessage is the only text an internal error ever shows a caller.
const GenericMessage = "an unexpected internal error occurred, try again and contact support if the problem persists"

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so that sentinels still match after WithDetails.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy; the predefined errors below are shared.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Internal reports whether the error must be hidden from callers.
func (e *AppError) Internal() bool {
	return e.Code == InternalError || e.Code == Conflict || e.Code == DuplicateAccountNumber
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InvalidAccountID, InsufficientFunds:
		return http.StatusBadRequest
	case AccountNotFound, OwnerNotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case AccessDenied:
		return http.StatusForbidden
	case UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError unwraps err into an AppError, classifying anything unknown as
// an internal error that keeps the original text in Details.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.WithDetails(err.Error())
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Predefined errors for common cases
var (
	ErrInvalidAmount          = NewAppError(InvalidAmount, "amount must be greater than zero")
	ErrInvalidAccountID       = NewAppError(InvalidAccountID, "invalid account id")
	ErrAccountNotFound        = NewAppError(AccountNotFound, "account not found")
	ErrOwnerNotFound          = NewAppError(OwnerNotFound, "owner not found")
	ErrAccessDenied           = NewAppError(AccessDenied, "credential rejected by identity service")
	ErrUnauthorized           = NewAppError(Unauthorized, "missing or malformed bearer credential")
	ErrInsufficientFunds      = NewAppError(InsufficientFunds, "insufficient funds")
	ErrUpstreamUnavailable    = NewAppError(UpstreamUnavailable, "identity service unavailable")
	ErrConflict               = NewAppError(Conflict, "account was modified concurrently")
	ErrDuplicateAccountNumber = NewAppError(DuplicateAccountNumber, "account number already taken")
	ErrInternal               = NewAppError(InternalError, "internal error")
	ErrCannotBeginTransaction = NewAppError(InternalError, "executor cannot begin a transaction")
)
