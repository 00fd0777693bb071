// Package errors provides structured error handling for chunkstream.
// It defines the error taxonomy shared by the connection, transform and proxy
// packages, and carries enough context for logging and programmatic handling.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category represents the type/category of an error for classification and handling
type Category string

const (
	CategoryUsage     Category = "usage"
	CategoryTransport Category = "transport"
	CategoryChunk     Category = "chunk"
	CategoryProvider  Category = "provider"
	CategoryInternal  Category = "internal"
	CategoryCancelled Category = "cancelled"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context provides additional context about where and when an error occurred
type Context struct {
	ConnectionID string                 `json:"connection_id,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Endpoint     string                 `json:"endpoint,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Component    string                 `json:"component,omitempty"`
	Operation    string                 `json:"operation,omitempty"`
}

// StreamError defines the interface for all chunkstream errors
type StreamError interface {
	error

	// Code returns the numeric error code
	Code() int

	// Message returns a human-readable error message
	Message() string

	// Details returns detailed technical description for debugging
	Details() string

	// Data returns structured error data for programmatic handling
	Data() interface{}

	// Category returns the error category for classification
	Category() Category

	// Severity returns the error severity level
	Severity() Severity

	// Context returns the error context information
	Context() *Context

	// WithContext returns a new error with the provided context
	WithContext(ctx *Context) StreamError

	// WithDetail returns a new error with additional detail
	WithDetail(detail string) StreamError

	// WithData returns a new error with structured data
	WithData(data interface{}) StreamError

	// Unwrap returns the underlying error for error chain traversal
	Unwrap() error

	// ToJSON returns the error as a JSON-serializable map
	ToJSON() map[string]interface{}
}

// baseError implements the StreamError interface
type baseError struct {
	code     int
	message  string
	details  string
	data     interface{}
	category Category
	severity Severity
	context  *Context
	cause    error
}

// Error implements the error interface
func (e *baseError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s", e.message, e.details)
	}
	return e.message
}

// Code returns the error code
func (e *baseError) Code() int {
	return e.code
}

// Message returns the human-readable error message
func (e *baseError) Message() string {
	return e.message
}

// Details returns detailed technical description
func (e *baseError) Details() string {
	return e.details
}

// Data returns structured error data
func (e *baseError) Data() interface{} {
	return e.data
}

// Category returns the error category
func (e *baseError) Category() Category {
	return e.category
}

// Severity returns the error severity
func (e *baseError) Severity() Severity {
	return e.severity
}

// Context returns the error context
func (e *baseError) Context() *Context {
	return e.context
}

// WithContext returns a new error with the provided context
func (e *baseError) WithContext(ctx *Context) StreamError {
	newErr := *e
	newErr.context = ctx
	return &newErr
}

// WithDetail returns a new error with additional detail
func (e *baseError) WithDetail(detail string) StreamError {
	newErr := *e
	if newErr.details != "" {
		newErr.details = fmt.Sprintf("%s; %s", newErr.details, detail)
	} else {
		newErr.details = detail
	}
	return &newErr
}

// WithData returns a new error with structured data
func (e *baseError) WithData(data interface{}) StreamError {
	newErr := *e
	newErr.data = data
	return &newErr
}

// Unwrap returns the underlying error
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a StreamError with the same code, so the
// package sentinels work with errors.Is regardless of message or context.
func (e *baseError) Is(target error) bool {
	t, ok := target.(StreamError)
	if !ok {
		return false
	}
	return t.Code() == e.code
}

// ToJSON returns the error as a JSON-serializable map
func (e *baseError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     e.code,
		"message":  e.message,
		"category": string(e.category),
		"severity": string(e.severity),
	}

	if e.details != "" {
		result["details"] = e.details
	}

	if e.data != nil {
		result["data"] = e.data
	}

	if e.context != nil {
		result["context"] = e.context
	}

	if e.cause != nil {
		result["cause"] = e.cause.Error()
	}

	return result
}

// NewError creates a new StreamError with the specified parameters
func NewError(code int, message string, category Category, severity Severity) StreamError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// NewErrorf creates a new StreamError with formatted message
func NewErrorf(code int, category Category, severity Severity, format string, args ...interface{}) StreamError {
	return &baseError{
		code:     code,
		message:  fmt.Sprintf(format, args...),
		category: category,
		severity: severity,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// WrapError wraps an existing error as a StreamError
func WrapError(err error, code int, message string, category Category, severity Severity) StreamError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    err,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// WrapErrorf wraps an existing error as a StreamError with formatted message
func WrapErrorf(err error, code int, category Category, severity Severity, format string, args ...interface{}) StreamError {
	return &baseError{
		code:     code,
		message:  fmt.Sprintf(format, args...),
		category: category,
		severity: severity,
		cause:    err,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// AsStreamError extracts a StreamError from err, looking through wrapped errors.
func AsStreamError(err error) (StreamError, bool) {
	for err != nil {
		if streamErr, ok := err.(StreamError); ok {
			return streamErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// IsCategory checks if an error is of a specific category
func IsCategory(err error, category Category) bool {
	if streamErr, ok := AsStreamError(err); ok {
		return streamErr.Category() == category
	}
	return false
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code int) bool {
	if streamErr, ok := AsStreamError(err); ok {
		return streamErr.Code() == code
	}
	return false
}

// MarshalJSON implements json.Marshaler for baseError
func (e *baseError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}
