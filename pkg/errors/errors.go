// Package errors provides a structured error system for rulecache with
// error codes, categories, and context.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeInvalidTTL    ErrorCode = "INVALID_TTL"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Persistent tier errors
	ErrCodeStorageRead     ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite    ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageCorrupt  ErrorCode = "STORAGE_CORRUPT"
	ErrCodeIndexLoad       ErrorCode = "INDEX_LOAD"
	ErrCodeIndexSave       ErrorCode = "INDEX_SAVE"
	ErrCodeDirectorySetup  ErrorCode = "DIRECTORY_SETUP"

	// Lifecycle errors
	ErrCodeAlreadyClosed ErrorCode = "ALREADY_CLOSED"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"

	// Operation errors
	ErrCodeWarmupFailed     ErrorCode = "WARMUP_FAILED"
	ErrCodeProviderFailed   ErrorCode = "PROVIDER_FAILED"
	ErrCodeOperationTimeout ErrorCode = "OPERATION_TIMEOUT"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	// Retryable hints whether the caller may retry the operation.
	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error wrapping compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code (for errors.Is compatibility).
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// JSON returns the error as a JSON string.
func (e *CacheError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// WithComponent annotates the error with the originating component.
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithOperation annotates the error with the failing operation.
func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

// WithDetail attaches a key/value detail to the error.
func (e *CacheError) WithDetail(key string, value interface{}) *CacheError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewError creates a new structured error with defaults derived from the code.
func NewError(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: isRetryableByDefault(code),
	}
}

// WrapError wraps an underlying error with a structured code and message.
func WrapError(cause error, code ErrorCode, message string) *CacheError {
	err := NewError(code, message)
	err.Cause = cause
	return err
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "INVALID_TTL") ||
		strings.HasPrefix(codeStr, "INVALID_FORMAT") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "STORAGE_") || strings.HasPrefix(codeStr, "INDEX_") ||
		strings.HasPrefix(codeStr, "DIRECTORY_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "ALREADY_") || strings.HasPrefix(codeStr, "INVALID_STATE"):
		return CategoryState
	case strings.HasPrefix(codeStr, "WARMUP_") || strings.HasPrefix(codeStr, "PROVIDER_") ||
		strings.HasPrefix(codeStr, "OPERATION_"):
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsCode reports whether err carries the given structured code anywhere
// in its chain.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if cacheErr, ok := err.(*CacheError); ok && cacheErr.Code == code {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func isRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeStorageRead, ErrCodeStorageWrite, ErrCodeOperationTimeout, ErrCodeProviderFailed:
		return true
	default:
		return false
	}
}
