package errors

// Usage errors: structural misuse by the caller, never retried.
const (
	CodeNotConnected    int = 1001 // Send attempted while not connected
	CodeMissingPayload  int = 1002 // Push-stream connect without payload
	CodeUnsupportedKind int = 1003 // Unknown connection kind
	CodeInvalidConfig   int = 1004 // Configuration rejected at construction
)

// Transport errors
const (
	CodeTransportError   int = 2001 // Handshake or response failure
	CodeConnectionClosed int = 2002 // Connection closed while an operation was pending
	CodeRetryExhausted   int = 2003 // Reconnect attempts used up
)

// Chunk errors
const (
	CodeMalformedChunk int = 3001 // Chunk could not be parsed or extracted
)

// Provider errors, raised by the proxy
const (
	CodeProviderUnknown       int = 4001 // No adapter registered for the provider
	CodeProviderNotConfigured int = 4002 // Provider secret absent from configuration
	CodeUpstreamError         int = 4003 // Upstream provider failed the request
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

// errorCodeRegistry maps error codes to their information
var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeNotConnected:    {CodeNotConnected, "NotConnected", "Connection is not connected", CategoryUsage, SeverityError},
	CodeMissingPayload:  {CodeMissingPayload, "MissingPayload", "Request payload is required", CategoryUsage, SeverityError},
	CodeUnsupportedKind: {CodeUnsupportedKind, "UnsupportedKind", "Unsupported connection kind", CategoryUsage, SeverityCritical},
	CodeInvalidConfig:   {CodeInvalidConfig, "InvalidConfig", "Invalid configuration", CategoryUsage, SeverityError},

	CodeTransportError:   {CodeTransportError, "TransportError", "Transport error", CategoryTransport, SeverityError},
	CodeConnectionClosed: {CodeConnectionClosed, "ConnectionClosed", "Connection closed", CategoryCancelled, SeverityInfo},
	CodeRetryExhausted:   {CodeRetryExhausted, "RetryExhausted", "Reconnect attempts exhausted", CategoryTransport, SeverityWarning},

	CodeMalformedChunk: {CodeMalformedChunk, "MalformedChunk", "Malformed chunk", CategoryChunk, SeverityError},

	CodeProviderUnknown:       {CodeProviderUnknown, "ProviderUnknown", "Unknown provider", CategoryProvider, SeverityError},
	CodeProviderNotConfigured: {CodeProviderNotConfigured, "ProviderNotConfigured", "Provider not configured", CategoryProvider, SeverityError},
	CodeUpstreamError:         {CodeUpstreamError, "UpstreamError", "Upstream provider error", CategoryProvider, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// GetErrorCodeCategory returns the category of an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	return CategoryInternal
}

// GetErrorCodeSeverity returns the severity of an error code
func GetErrorCodeSeverity(code int) Severity {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Severity
	}
	return SeverityError
}
