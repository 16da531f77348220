package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// Composition-specific error codes.
const (
	ErrJSONParse        = "JSON_PARSE_ERROR"
	ErrInvalidSelection = "INVALID_SELECTION"
	ErrCatalogMiss      = "CATALOG_MISS"
	ErrSessionNotFound  = "SESSION_NOT_FOUND"
)

// ErrorEnvelope is the standard error response envelope returned by the
// console API. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewJSONParseError returns a JSON_PARSE_ERROR scoped to the named field.
// The field names the text buffer that failed to parse (trigger_data, the
// staged action parameters, or a persisted actions string).
func NewJSONParseError(field, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrJSONParse,
		Message: msg,
		Details: []FieldError{{Field: field, Code: ErrJSONParse, Message: msg}},
	}
}

// NewInvalidSelectionError returns an INVALID_SELECTION error for a value
// outside the catalog for the current platform.
func NewInvalidSelectionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidSelection, Message: msg}
}

// NewCatalogMissError returns a CATALOG_MISS error. Reaching an unknown
// platform key is a programming invariant violation, not a user error;
// callers log it and surface it as an internal condition.
func NewCatalogMissError(platform string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCatalogMiss,
		Message: fmt.Sprintf("platform %q is not in the catalog", platform),
	}
}

// NewSessionNotFoundError returns a SESSION_NOT_FOUND error.
func NewSessionNotFoundError(id string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionNotFound,
		Message: fmt.Sprintf("editing session %q not found or expired", id),
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The automation backend is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The automation backend did not respond in time",
	}
}

// NewHTTPError returns an error for a non-2xx backend response, carrying
// the upstream status and the {detail} text when present.
func NewHTTPError(status int, detail string) *ErrorEnvelope {
	if detail == "" {
		detail = fmt.Sprintf("backend returned status %d", status)
	}
	code := ErrBadRequest
	switch {
	case status == 404:
		code = ErrNotFound
	case status == 409:
		code = ErrConflict
	case status == 422:
		code = ErrValidationError
	case status >= 500:
		code = ErrBackendUnavailable
	}
	return &ErrorEnvelope{Code: code, Message: detail}
}
