package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Transition error codes. These are deterministic validation outcomes and
// are surfaced verbatim to the caller.
const (
	ErrTerminalState          = "TERMINAL_STATE"
	ErrInvalidTargetStep      = "INVALID_TARGET_STEP"
	ErrMissingComment         = "MISSING_COMMENT"
	ErrSelfApproval           = "SELF_APPROVAL"
	ErrConcurrentModification = "CONCURRENT_MODIFICATION"
)

// ErrorEnvelope is the standard error response envelope returned by the
// service. It implements the error interface.
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

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error. Used by state stores when a
// compare-and-swap loses to a concurrent writer.
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

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewTerminalStateError returns a TERMINAL_STATE error: the work item is
// completed or cancelled and accepts no further transitions.
func NewTerminalStateError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrTerminalState, Message: msg}
}

// NewInvalidTargetStepError returns an INVALID_TARGET_STEP error.
func NewInvalidTargetStepError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTargetStep, Message: msg}
}

// NewMissingCommentError returns a MISSING_COMMENT error.
func NewMissingCommentError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrMissingComment, Message: msg}
}

// NewSelfApprovalError returns a SELF_APPROVAL error.
func NewSelfApprovalError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrSelfApproval, Message: msg}
}

// NewConcurrentModificationError returns a CONCURRENT_MODIFICATION error:
// the engine exhausted its conflict retries without winning a write.
func NewConcurrentModificationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConcurrentModification, Message: msg}
}

// IsCode reports whether err is an ErrorEnvelope with the given code.
func IsCode(err error, code string) bool {
	ee, ok := err.(*ErrorEnvelope)
	return ok && ee.Code == code
}
