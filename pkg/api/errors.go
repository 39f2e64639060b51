package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeValidation marks malformed request assembly. Fatal to the
	// call, never retried.
	ErrorTypeValidation ErrorType = "validation_error"

	// ErrorTypeTransport marks network, timeout, or premature stream close
	// failures that survived the retry budget.
	ErrorTypeTransport ErrorType = "transport_error"

	// ErrorTypeProvider marks a non-success status from the LLM endpoint.
	ErrorTypeProvider ErrorType = "provider_error"

	// ErrorTypeSerialization marks a payload that could not be encoded or
	// decoded at all.
	ErrorTypeSerialization ErrorType = "serialization_error"

	// ErrorTypeToolNotFound and ErrorTypeToolExecution are recoverable.
	// They are converted into tool messages and never end a run.
	ErrorTypeToolNotFound  ErrorType = "tool_not_found"
	ErrorTypeToolExecution ErrorType = "tool_execution_error"

	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
)

// APIError represents a structured error with type, param, and message.
// Provider errors also carry the upstream HTTP status and body.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
	Body    string    `json:"body,omitempty"`

	// Cause is the underlying error, if any. It is not serialized.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.Param != "":
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status: %d)", e.Type, e.Message, e.Status)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether the error is handled inside the loop by
// feeding a diagnostic back to the model.
func (e *APIError) Recoverable() bool {
	return e.Type == ErrorTypeToolNotFound || e.Type == ErrorTypeToolExecution
}

// NewValidationError creates an APIError for malformed request assembly.
func NewValidationError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeValidation,
		Param:   param,
		Message: message,
	}
}

// NewTransportError creates an APIError for network level failures.
func NewTransportError(message string, cause error) *APIError {
	return &APIError{
		Type:    ErrorTypeTransport,
		Message: message,
		Cause:   cause,
	}
}

// NewProviderError creates an APIError for a non-success provider status.
func NewProviderError(status int, body, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeProvider,
		Status:  status,
		Body:    body,
		Message: message,
	}
}

// NewSerializationError creates an APIError for unparseable payloads.
func NewSerializationError(message string, cause error) *APIError {
	return &APIError{
		Type:    ErrorTypeSerialization,
		Message: message,
		Cause:   cause,
	}
}

// NewToolNotFoundError creates an APIError for a directive naming an
// unregistered capability.
func NewToolNotFoundError(name string) *APIError {
	return &APIError{
		Type:    ErrorTypeToolNotFound,
		Param:   name,
		Message: fmt.Sprintf("unknown function %q", name),
	}
}

// NewToolExecutionError creates an APIError for a capability that failed.
func NewToolExecutionError(name string, cause error) *APIError {
	msg := "tool execution failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &APIError{
		Type:    ErrorTypeToolExecution,
		Param:   name,
		Message: msg,
		Cause:   cause,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal failures.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// AsAPIError extracts an *APIError from err. Errors that are not APIErrors
// are wrapped as server errors so callers always get a typed value.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Type: ErrorTypeServerError, Message: err.Error(), Cause: err}
}

// IsErrorType reports whether err is an APIError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == t
}
