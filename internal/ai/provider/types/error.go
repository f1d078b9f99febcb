package types

import "fmt"

// ErrorType classifies provider failures for retry decisions
type ErrorType string

const (
	// 4xx client errors
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error" // 400 - malformed request
	ErrorTypeAuthentication ErrorType = "authentication_error"  // 401 - API key problem
	ErrorTypePermission     ErrorType = "permission_error"      // 403 - key lacks access
	ErrorTypeNotFound       ErrorType = "not_found_error"       // 404 - unknown resource
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"      // 429 - rate limited

	// 5xx / transport errors
	ErrorTypeAPI        ErrorType = "api_error"        // 5xx - backend failure
	ErrorTypeOverloaded ErrorType = "overloaded_error" // 529 - temporarily overloaded
	ErrorTypeTransport  ErrorType = "transport_error"  // network-level failure
)

// ProviderError is the normalized adapter failure
type ProviderError struct {
	Type       ErrorType // error classification
	Provider   string    // adapter name
	StatusCode int       // HTTP status code, 0 for transport errors
	Message    string    // error message
	Err        error     // original error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s][%s] %s: %v", e.Provider, e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s][%s] %s", e.Provider, e.Type, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure is transient. Retryable errors
// map to the ProviderUnavailable taxonomy; everything else is a
// ProviderRejected terminal failure.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeAPI, ErrorTypeOverloaded, ErrorTypeTransport:
		return true
	default:
		return false
	}
}

// NewTransportError creates a retryable transport-level error
func NewTransportError(provider, message string, err error) *ProviderError {
	return &ProviderError{
		Type:     ErrorTypeTransport,
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// NewStatusError classifies an HTTP status code into a ProviderError
func NewStatusError(provider string, statusCode int, message string) *ProviderError {
	var t ErrorType
	switch {
	case statusCode == 400:
		t = ErrorTypeInvalidRequest
	case statusCode == 401:
		t = ErrorTypeAuthentication
	case statusCode == 403:
		t = ErrorTypePermission
	case statusCode == 404:
		t = ErrorTypeNotFound
	case statusCode == 429:
		t = ErrorTypeRateLimit
	case statusCode == 529:
		t = ErrorTypeOverloaded
	case statusCode >= 500:
		t = ErrorTypeAPI
	default:
		t = ErrorTypeInvalidRequest
	}

	return &ProviderError{
		Type:       t,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
	}
}
