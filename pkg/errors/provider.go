package errors

// ProviderErrorData contains structured data for proxy/provider errors
type ProviderErrorData struct {
	Provider   string `json:"provider"`
	SecretKey  string `json:"secret_key,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// ProviderUnknown creates an error for a provider with no registered adapter
func ProviderUnknown(provider string) StreamError {
	return NewErrorf(
		CodeProviderUnknown,
		CategoryProvider,
		SeverityError,
		"unknown provider %q", provider,
	).WithData(&ProviderErrorData{Provider: provider})
}

// ProviderNotConfigured creates an error for a provider whose secret is absent
// from process configuration. The secret key name is recorded, never its value.
func ProviderNotConfigured(provider, secretKey string) StreamError {
	return NewErrorf(
		CodeProviderNotConfigured,
		CategoryProvider,
		SeverityError,
		"provider %q is not configured", provider,
	).WithData(&ProviderErrorData{
		Provider:  provider,
		SecretKey: secretKey,
	})
}

// UpstreamError creates an error for a failed upstream provider call.
// statusCode is zero when no response was received.
func UpstreamError(provider string, statusCode int, cause error) StreamError {
	var err StreamError
	if statusCode > 0 {
		err = WrapErrorf(cause, CodeUpstreamError, CategoryProvider, SeverityError,
			"upstream %s returned HTTP %d", provider, statusCode)
	} else {
		err = WrapErrorf(cause, CodeUpstreamError, CategoryProvider, SeverityError,
			"upstream %s request failed", provider)
		if cause != nil {
			err = err.WithDetail(cause.Error())
		}
	}
	return err.WithData(&ProviderErrorData{
		Provider:   provider,
		StatusCode: statusCode,
	})
}
