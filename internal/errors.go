package internal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrTransportTimeout ErrorType = iota
	ErrConnection
	ErrAuthentication
	ErrTokenInvalid
	ErrRateLimited
	ErrUnhandledStatus
	ErrUnsupportedContentType
	ErrChunkFetch
	ErrAssetLookup
	ErrInvalidResponse
	ErrConfiguration
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// APIError is the error type returned by every fallible operation of the data API client.
// Code is the HTTP status when one was observed, zero otherwise.
type APIError struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	URL        string                 `json:"url,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	RetryAfter int                    `json:"retry_after,omitempty"` // seconds
	Body       string                 `json:"body,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	cause      error
}

// Error implements the error interface
func (e *APIError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("data api error (code: %d, type: %s)", e.Code, e.Type.String()))

	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// Unwrap returns the underlying cause, if any
func (e *APIError) Unwrap() error {
	return e.cause
}

// DetailedError returns a detailed error message with all available information
func (e *APIError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("Code: %d", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.cause))
	}

	// Pre-signed link URLs carry credentials in the query string
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if e.Body != "" {
		parts = append(parts, fmt.Sprintf("Body: %s", truncate(e.Body, 512)))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	if e.RetryAfter > 0 {
		parts = append(parts, fmt.Sprintf("Retry after: %d seconds", e.RetryAfter))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrTransportTimeout:
		return "TransportTimeout"
	case ErrConnection:
		return "Connection"
	case ErrAuthentication:
		return "Authentication"
	case ErrTokenInvalid:
		return "TokenInvalid"
	case ErrRateLimited:
		return "RateLimited"
	case ErrUnhandledStatus:
		return "UnhandledStatus"
	case ErrUnsupportedContentType:
		return "UnsupportedContentType"
	case ErrChunkFetch:
		return "ChunkFetch"
	case ErrAssetLookup:
		return "AssetLookup"
	case ErrInvalidResponse:
		return "InvalidResponse"
	case ErrConfiguration:
		return "Configuration"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewAPIError creates a new APIError with the default suggestion and severity for its type
func NewAPIError(code int, message string, errorType ErrorType) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Suggestion: getDefaultSuggestion(errorType, code),
		Context:    make(map[string]interface{}),
	}
}

// WrapAPIError creates an APIError that wraps an underlying cause
func WrapAPIError(cause error, message string, errorType ErrorType) *APIError {
	err := NewAPIError(0, message, errorType)
	err.cause = cause
	return err
}

// WithSuggestion adds a custom suggestion to the error
func (e *APIError) WithSuggestion(suggestion string) *APIError {
	e.Suggestion = suggestion
	return e
}

// WithURL adds URL context to the error (will be redacted in logs)
func (e *APIError) WithURL(url string) *APIError {
	e.URL = url
	return e
}

// WithBody attaches the raw response body
func (e *APIError) WithBody(body []byte) *APIError {
	e.Body = string(body)
	return e
}

// WithRetryAfter sets the retry delay for rate limit errors
func (e *APIError) WithRetryAfter(seconds int) *APIError {
	e.RetryAfter = seconds
	return e
}

// WithContext adds context information to the error
func (e *APIError) WithContext(key string, value interface{}) *APIError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable reports whether the condition can clear up without caller action.
// The resolver never retries these itself; transport failures are fatal by contract.
func (e *APIError) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimited, ErrTransportTimeout, ErrConnection:
		return true
	case ErrUnhandledStatus:
		return e.Code >= 500
	default:
		return false
	}
}

// IsCritical returns true if the error is critical and should stop execution
func (e *APIError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// IsType reports whether err (or anything it wraps) is an APIError of the given type
func IsType(err error, errorType ErrorType) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type == errorType
	}
	return false
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType, code int) string {
	switch errorType {
	case ErrTransportTimeout:
		return "The service did not answer in time. Check your connection and try again"
	case ErrConnection:
		return "Could not reach the service. Check your connection, DNS and proxy settings"
	case ErrAuthentication:
		return "Check the username and password (--username/--password or IRFETCH_USERNAME/IRFETCH_PASSWORD)"
	case ErrTokenInvalid:
		return "The access token was rejected. Obtain a new token and pass it with --token"
	case ErrRateLimited:
		return "The request quota is exhausted. Wait for the reset time before retrying"
	case ErrUnhandledStatus:
		if code >= 500 {
			return "Server error occurred. Please try again later"
		}
		return "Check the endpoint path and query parameters"
	case ErrUnsupportedContentType:
		return "The service returned a format this client cannot decode"
	case ErrChunkFetch:
		return "A chunk file could not be downloaded. The chunk links may have expired; request the data again"
	case ErrAssetLookup:
		return "The asset table is missing an entry; request the assets again"
	case ErrInvalidResponse:
		return "Invalid response from server. The API might have changed"
	case ErrConfiguration:
		return "Supply either a username and password or an access token, not both"
	default:
		return "Please check the error details and try again"
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrRateLimited, ErrTransportTimeout:
		return SeverityWarning
	case ErrTokenInvalid, ErrConfiguration:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL drops the query string, which holds link signatures
func redactSensitiveURL(url string) string {
	if i := strings.Index(url, "?"); i >= 0 {
		return url[:i] + "?[REDACTED]"
	}
	return url
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Common error constructors for frequently used errors

// NewUnhandledStatusError creates an error for a response status the protocol has no recovery for
func NewUnhandledStatusError(status int, url string, body []byte) *APIError {
	return NewAPIError(status, fmt.Sprintf("unhandled non-200 response: %d", status), ErrUnhandledStatus).
		WithURL(url).
		WithBody(body)
}

// NewTokenInvalidError creates the terminal error for a rejected bearer token
func NewTokenInvalidError(url string) *APIError {
	return NewAPIError(401, "access token not valid", ErrTokenInvalid).WithURL(url)
}

// NewRateLimitedError creates an error for a retry budget exhausted by 429 responses
func NewRateLimitedError(attempts int, retryAfter int) *APIError {
	return NewAPIError(429, fmt.Sprintf("still rate limited after %d attempts", attempts), ErrRateLimited).
		WithRetryAfter(retryAfter).
		WithContext("attempts", attempts)
}

// NewUnsupportedContentTypeError creates an error for an undecodable response
func NewUnsupportedContentTypeError(contentType, url string) *APIError {
	return NewAPIError(0, fmt.Sprintf("unsupported Content-Type: %q", contentType), ErrUnsupportedContentType).
		WithURL(url).
		WithContext("content_type", contentType)
}

// NewConfigurationError creates an error for an unusable client configuration
func NewConfigurationError(message string) *APIError {
	return NewAPIError(0, message, ErrConfiguration)
}
