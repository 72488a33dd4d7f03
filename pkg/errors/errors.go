package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so sentinel comparisons survive WithInternal copies.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Authentication errors.
var (
	ErrNoToken = &AppError{
		Code:       "NO_TOKEN",
		Message:    "Authentication token required",
		StatusCode: http.StatusUnauthorized,
	}
	ErrInvalidToken = &AppError{
		Code:       "INVALID_TOKEN",
		Message:    "Authentication token is invalid or expired",
		StatusCode: http.StatusUnauthorized,
	}
	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}
	ErrInvalidRefresh = &AppError{
		Code:       "INVALID_REFRESH",
		Message:    "Refresh session is invalid or expired",
		StatusCode: http.StatusUnauthorized,
	}
)

// Authorization errors.
var (
	ErrNoPermission = &AppError{
		Code:       "NO_PERMISSION",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}
	ErrScopeForbidden = &AppError{
		Code:       "SCOPE_FORBIDDEN",
		Message:    "Requested houses are outside of your scope",
		StatusCode: http.StatusForbidden,
	}
	ErrNoHouseID = &AppError{
		Code:       "NO_HOUSE_ID",
		Message:    "House id is required",
		StatusCode: http.StatusBadRequest,
	}
)

// Delegation errors.
var (
	ErrPermissionForbidden = &AppError{
		Code:       "PERMISSION_FORBIDDEN",
		Message:    "Requested permissions exceed what you may delegate",
		StatusCode: http.StatusForbidden,
	}
	ErrForbiddenSuperadmin = &AppError{
		Code:       "FORBIDDEN_SUPERADMIN",
		Message:    "Superadmin accounts cannot be modified",
		StatusCode: http.StatusForbidden,
	}
	ErrForbiddenSuperadminRole = &AppError{
		Code:       "FORBIDDEN_SUPERADMIN_ROLE",
		Message:    "The superadmin role cannot be assigned",
		StatusCode: http.StatusForbidden,
	}
	ErrForbiddenAllCap = &AppError{
		Code:       "FORBIDDEN_ALL_CAP",
		Message:    "Only a superadmin may grant an unrestricted delegation cap",
		StatusCode: http.StatusForbidden,
	}
)

// Data errors.
var (
	ErrEmailExists = &AppError{
		Code:       "EMAIL_EXISTS",
		Message:    "Email is already registered",
		StatusCode: http.StatusConflict,
	}
	ErrRoleNotFound = &AppError{
		Code:       "ROLE_NOT_FOUND",
		Message:    "Role not found",
		StatusCode: http.StatusBadRequest,
	}
	ErrValidation = &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}
	ErrUserNotFound = &AppError{
		Code:       "USER_NOT_FOUND",
		Message:    "User not found",
		StatusCode: http.StatusNotFound,
	}
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}
)

// Transport errors.
var (
	ErrInternalServer = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrPayloadTooLarge = &AppError{
		Code:       "PAYLOAD_TOO_LARGE",
		Message:    "Request body is too large",
		StatusCode: http.StatusRequestEntityTooLarge,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an internal AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       ErrInternalServer.Code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewValidation wraps validation failures with a helpful message.
func NewValidation(message string) *AppError {
	return ErrValidation.WithMessage(message)
}
