package errors

import (
	"fmt"
	"net/url"
	"time"
)

// Sentinels for errors.Is checks. Matching is by code, so any error built by
// the constructors below matches its sentinel.
var (
	ErrNotConnected     = NewError(CodeNotConnected, "not connected", CategoryUsage, SeverityError)
	ErrMissingPayload   = NewError(CodeMissingPayload, "missing payload", CategoryUsage, SeverityError)
	ErrUnsupportedKind  = NewError(CodeUnsupportedKind, "unsupported connection kind", CategoryUsage, SeverityCritical)
	ErrTransport        = NewError(CodeTransportError, "transport error", CategoryTransport, SeverityError)
	ErrConnectionClosed = NewError(CodeConnectionClosed, "connection closed", CategoryCancelled, SeverityInfo)
	ErrRetryExhausted   = NewError(CodeRetryExhausted, "retries exhausted", CategoryTransport, SeverityWarning)
)

// TransportErrorData contains structured data for transport-related errors
type TransportErrorData struct {
	Transport  string `json:"transport"`
	Operation  string `json:"operation,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Body       string `json:"body,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// RetryErrorData describes a reconnect loop that gave up
type RetryErrorData struct {
	Transport  string        `json:"transport"`
	Endpoint   string        `json:"endpoint,omitempty"`
	Attempts   int           `json:"attempts"`
	LastDelay  time.Duration `json:"last_delay,omitempty"`
	LastReason string        `json:"last_reason,omitempty"`
}

// NotConnected creates the error returned by Send when the connection is not open.
func NotConnected(transport, health string) StreamError {
	return NewErrorf(
		CodeNotConnected,
		CategoryUsage,
		SeverityError,
		"%s connection is not connected (health: %s)", transport, health,
	).WithData(&TransportErrorData{
		Transport: transport,
		Operation: "send",
		Reason:    health,
	})
}

// MissingPayload creates the error returned when a push-stream connect has no payload.
func MissingPayload(transport string) StreamError {
	return NewErrorf(
		CodeMissingPayload,
		CategoryUsage,
		SeverityError,
		"%s connection requires a request payload", transport,
	)
}

// UnsupportedKind creates the error returned by the factory for unknown kinds.
func UnsupportedKind(kind string) StreamError {
	return NewErrorf(
		CodeUnsupportedKind,
		CategoryUsage,
		SeverityCritical,
		"unsupported connection kind %q", kind,
	)
}

// InvalidConfig creates an error for a configuration rejected at construction.
func InvalidConfig(parameter, reason string) StreamError {
	return NewErrorf(
		CodeInvalidConfig,
		CategoryUsage,
		SeverityError,
		"invalid configuration for %s: %s", parameter, reason,
	)
}

// TransportError creates a generic transport error
func TransportError(transport, endpoint, operation string, cause error) StreamError {
	message := fmt.Sprintf("%s transport error", transport)
	if operation != "" {
		message = fmt.Sprintf("%s transport error during %s", transport, operation)
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
		message = fmt.Sprintf("%s: %s", message, reason)
	}

	return WrapError(
		cause,
		CodeTransportError,
		message,
		CategoryTransport,
		SeverityError,
	).WithData(&TransportErrorData{
		Transport: transport,
		Operation: operation,
		Endpoint:  endpointHost(endpoint),
		Reason:    reason,
	})
}

// HTTPStatusError creates a transport error for a non-success HTTP response.
// body is an excerpt of the response body and may be empty.
func HTTPStatusError(transport, endpoint string, statusCode int, body string) StreamError {
	message := fmt.Sprintf("%s transport error during connect: HTTP %d", transport, statusCode)
	err := NewError(
		CodeTransportError,
		message,
		CategoryTransport,
		SeverityError,
	).WithData(&TransportErrorData{
		Transport:  transport,
		Operation:  "connect",
		Endpoint:   endpointHost(endpoint),
		StatusCode: statusCode,
		Body:       body,
	})
	if body != "" {
		err = err.WithDetail(body)
	}
	return err
}

// ConnectionClosed creates the error returned when Close interrupts a pending operation.
func ConnectionClosed(transport, operation string) StreamError {
	return NewErrorf(
		CodeConnectionClosed,
		CategoryCancelled,
		SeverityInfo,
		"%s connection closed during %s", transport, operation,
	)
}

// RetryExhausted creates the error logged when the reconnect loop gives up.
func RetryExhausted(transport, endpoint string, attempts int, lastDelay time.Duration, cause error) StreamError {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return WrapErrorf(
		cause,
		CodeRetryExhausted,
		CategoryTransport,
		SeverityWarning,
		"%s connection gave up after %d reconnect attempts", transport, attempts,
	).WithData(&RetryErrorData{
		Transport:  transport,
		Endpoint:   endpointHost(endpoint),
		Attempts:   attempts,
		LastDelay:  lastDelay,
		LastReason: reason,
	})
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}
