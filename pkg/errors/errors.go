package errors

import (
	"errors"
	"fmt"
)

// Generic error kinds shared by every layer

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a duplicate registration or key
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates missing or rejected credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")

	// ErrExternal indicates a failure reported by a third-party API
	ErrExternal = errors.New("external service error")

	// ErrNotImplemented indicates the operation is not supported by this implementation
	ErrNotImplemented = errors.New("not implemented")

	// ErrRateLimitExceeded indicates API rate limit exceeded
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Agent pipeline errors

var (
	// ErrNoAccess indicates the accounting platform credential or realm is missing
	ErrNoAccess = errors.New("no accounting data access")

	// ErrFetch indicates a single data type could not be fetched
	ErrFetch = errors.New("data fetch failed")

	// ErrLLM indicates the language model call failed or timed out
	ErrLLM = errors.New("llm call failed")

	// ErrSynthesis indicates multi-agent results could not be merged or summarized
	ErrSynthesis = errors.New("synthesis failed")

	// ErrUnknownAgent indicates an agent id that has no registered pipeline
	ErrUnknownAgent = errors.New("unknown agent")
)

// FetchError describes a failed fetch of one data type.
type FetchError struct {
	DataType string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.DataType, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}

// NewFetchError wraps err as a fetch failure for dataType
func NewFetchError(dataType string, err error) *FetchError {
	return &FetchError{DataType: dataType, Err: err}
}

// LLMError describes a failed completion from a provider.
type LLMError struct {
	Provider string
	Err      error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Provider, e.Err)
}

func (e *LLMError) Unwrap() []error {
	return []error{ErrLLM, e.Err}
}

// NewLLMError wraps err as a provider failure
func NewLLMError(provider string, err error) *LLMError {
	return &LLMError{Provider: provider, Err: err}
}

// UnknownAgentError is raised when an agent id has no pipeline and the fallback is used.
type UnknownAgentError struct {
	ID       string
	Fallback string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q, using %q", e.ID, e.Fallback)
}

func (e *UnknownAgentError) Unwrap() error {
	return ErrUnknownAgent
}

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// MultiError collects errors from independent operations
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
