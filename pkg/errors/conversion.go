package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ConvertStandardError converts common Go errors to StreamErrors
func ConvertStandardError(err error) StreamError {
	if err == nil {
		return nil
	}

	if streamErr, ok := AsStreamError(err); ok {
		return streamErr
	}

	if stderrors.Is(err, context.Canceled) {
		return WrapError(err, CodeConnectionClosed, "operation cancelled", CategoryCancelled, SeverityInfo)
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, CodeTransportError, "operation timed out", CategoryTransport, SeverityError)
	}

	return WrapError(err, CodeTransportError, fmt.Sprintf("transport error: %v", err), CategoryTransport, SeverityError)
}

// IsRetryableError reports whether the reconnect loop should keep trying after err.
// Usage errors and cancellations are final; transport faults are retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}

	if streamErr, ok := AsStreamError(err); ok {
		switch streamErr.Category() {
		case CategoryUsage, CategoryCancelled, CategoryChunk:
			return false
		}
		if data, ok := streamErr.Data().(*TransportErrorData); ok && data.StatusCode > 0 {
			return data.StatusCode >= http.StatusInternalServerError || data.StatusCode == http.StatusTooManyRequests
		}
		return true
	}

	return true
}

// HTTPStatusFor maps a StreamError to the HTTP status the proxy responds with.
func HTTPStatusFor(err error) int {
	streamErr, ok := AsStreamError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch streamErr.Code() {
	case CodeProviderUnknown, CodeMissingPayload, CodeMalformedChunk, CodeInvalidConfig:
		return http.StatusBadRequest
	case CodeProviderNotConfigured:
		return http.StatusInternalServerError
	case CodeUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
