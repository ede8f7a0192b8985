package errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrorTypeStorageUnavailable ErrorType = iota
	ErrorTypeStorageRead
	ErrorTypeStorageWrite
	ErrorTypeNetwork
	ErrorTypeNotFound
	ErrorTypeAPI
	ErrorTypeValidation
	ErrorTypeConfig
	ErrorTypeUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeStorageUnavailable:
		return "storage_unavailable"
	case ErrorTypeStorageRead:
		return "storage_read"
	case ErrorTypeStorageWrite:
		return "storage_write"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeAPI:
		return "api"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeConfig:
		return "config"
	default:
		return "unknown"
	}
}

// AppError represents a structured error with context and retry information
type AppError struct {
	Type       ErrorType
	Message    string
	Underlying error
	Retryable  bool
	RetryAfter time.Duration
	Context    map[string]string
}

// Sentinels for errors.Is. They match any AppError of the same type.
var (
	ErrStorageUnavailable = &AppError{Type: ErrorTypeStorageUnavailable, Message: "persistent storage unavailable"}
	ErrStorageRead        = &AppError{Type: ErrorTypeStorageRead, Message: "storage read failed"}
	ErrStorageWrite       = &AppError{Type: ErrorTypeStorageWrite, Message: "storage write failed"}
)

// Error implements the error interface
func (e *AppError) Error() string {
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, e.Context[k]))
		}
		return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, ", "))
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is an AppError of the same type.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// IsRetryable returns whether this error can be retried
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// GetRetryAfter returns the duration to wait before retrying
func (e *AppError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return e.RetryAfter
	}
	switch e.Type {
	case ErrorTypeNetwork:
		return 2 * time.Second
	case ErrorTypeAPI:
		return 5 * time.Second
	default:
		return 1 * time.Second
	}
}

// WrapStorageError wraps a storage fault. typ must be one of the storage types.
func WrapStorageError(err error, typ ErrorType, operation, key string) *AppError {
	if err == nil {
		return nil
	}

	context := map[string]string{"operation": operation}
	if key != "" {
		context["key"] = key
	}

	var message string
	switch typ {
	case ErrorTypeStorageUnavailable:
		message = fmt.Sprintf("Cache storage unavailable: %s", err.Error())
	case ErrorTypeStorageRead:
		message = fmt.Sprintf("Cache %s failed: %s", operation, err.Error())
	default:
		typ = ErrorTypeStorageWrite
		message = fmt.Sprintf("Cache %s failed: %s", operation, err.Error())
	}

	return &AppError{
		Type:       typ,
		Message:    message,
		Underlying: err,
		Retryable:  false,
		Context:    context,
	}
}

// WrapTransportError classifies an error raised before any HTTP response arrived.
func WrapTransportError(err error, operation, url string) *AppError {
	if err == nil {
		return nil
	}

	context := map[string]string{"operation": operation, "url": url}
	lowerError := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lowerError, "timeout") || strings.Contains(lowerError, "deadline"):
		return &AppError{
			Type:       ErrorTypeNetwork,
			Message:    "Search backend timed out - retrying",
			Underlying: err,
			Retryable:  true,
			RetryAfter: 2 * time.Second,
			Context:    context,
		}
	case strings.Contains(lowerError, "context canceled"):
		return &AppError{
			Type:       ErrorTypeNetwork,
			Message:    "Search request canceled",
			Underlying: err,
			Retryable:  false,
			Context:    context,
		}
	default:
		return &AppError{
			Type:       ErrorTypeNetwork,
			Message:    fmt.Sprintf("Network error contacting search backend: %s", cleanErrorOutput(err.Error())),
			Underlying: err,
			Retryable:  true,
			Context:    context,
		}
	}
}

// WrapHTTPError classifies a non-2xx response from the search backend
func WrapHTTPError(status int, body, operation, url string) *AppError {
	context := map[string]string{
		"operation": operation,
		"url":       url,
		"status":    fmt.Sprintf("%d", status),
	}
	underlying := fmt.Errorf("unexpected status %d: %s", status, cleanErrorOutput(body))

	switch {
	case status == http.StatusNotFound:
		return &AppError{
			Type:       ErrorTypeNotFound,
			Message:    "Search endpoint not found",
			Underlying: underlying,
			Retryable:  false,
			Context:    context,
		}
	case status == http.StatusTooManyRequests:
		return &AppError{
			Type:       ErrorTypeAPI,
			Message:    "Search backend rate limit reached - retrying with backoff",
			Underlying: underlying,
			Retryable:  true,
			RetryAfter: 5 * time.Second,
			Context:    context,
		}
	case status >= 500:
		return &AppError{
			Type:       ErrorTypeAPI,
			Message:    fmt.Sprintf("Search backend error (%d) - retrying", status),
			Underlying: underlying,
			Retryable:  true,
			Context:    context,
		}
	default:
		return &AppError{
			Type:       ErrorTypeAPI,
			Message:    fmt.Sprintf("Search request rejected (%d): %s", status, cleanErrorOutput(body)),
			Underlying: underlying,
			Retryable:  false,
			Context:    context,
		}
	}
}

// WrapValidationError wraps validation errors
func WrapValidationError(err error, input string) *AppError {
	if err == nil {
		return nil
	}

	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    fmt.Sprintf("Invalid input '%s': %s", input, err.Error()),
		Underlying: err,
		Retryable:  false,
		Context:    map[string]string{"input": input},
	}
}

// WrapConfigError wraps configuration loading and validation errors
func WrapConfigError(err error, source string) *AppError {
	if err == nil {
		return nil
	}

	return &AppError{
		Type:       ErrorTypeConfig,
		Message:    fmt.Sprintf("Invalid configuration: %s", err.Error()),
		Underlying: err,
		Retryable:  false,
		Context:    map[string]string{"source": source},
	}
}

// cleanErrorOutput keeps the first meaningful line of an error body
func cleanErrorOutput(errorText string) string {
	cleaned := strings.TrimSpace(errorText)
	cleaned = strings.TrimPrefix(cleaned, "ERROR: ")

	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "WARNING") {
			if len(line) > 200 {
				return line[:200] + "..."
			}
			return line
		}
	}

	return cleaned
}

// UserFriendlyMessage returns a user-friendly error message
func (e *AppError) UserFriendlyMessage() string {
	switch e.Type {
	case ErrorTypeStorageUnavailable:
		return e.Message + " - results will be fetched live; check MTS_CACHE_DIR permissions"
	case ErrorTypeNotFound:
		return e.Message + " - verify backend.url in your configuration"
	case ErrorTypeNetwork:
		return e.Message + " - check your internet connection"
	case ErrorTypeValidation:
		return e.Message + " - keys must be non-empty and must not end in _timestamp"
	case ErrorTypeConfig:
		return e.Message + " - see 'mts --help' for configuration keys"
	default:
		return e.Message
	}
}
