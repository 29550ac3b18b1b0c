package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryDatabase      ErrorCategory = "database"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryResource      ErrorCategory = "resource"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
)

// Error codes raised by the dorm mail pipeline
const (
	CodeUpstreamFetchFailed = "UPSTREAM_FETCH_FAILED"
	CodeUpstreamStatus      = "UPSTREAM_BAD_STATUS"
	CodeDecodeFailed        = "DECODE_FAILED"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeCacheWriteFailed    = "CACHE_WRITE_FAILED"
	CodeCacheReadFailed     = "CACHE_READ_FAILED"
)

// UpstreamFailurePrefix is prepended to every upstream error reported to clients
const UpstreamFailurePrefix = "Failed to fetch or parse upstream data: "

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// NewUpstreamError wraps a failure to reach or read the legacy dorm mail page.
// Upstream errors are reported to the caller and never retried by the pipeline.
func NewUpstreamError(code, serviceName, operation string, cause error) *ServiceError {
	message := "upstream fetch failed"
	if cause != nil {
		message = cause.Error()
	}
	category := ErrorCategoryNetwork
	if isTimeout(cause) {
		category = ErrorCategoryTimeout
	}
	return NewServiceError(category, code, message, serviceName, operation, false, cause)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewDecodeError wraps a failure to turn legacy-encoded bytes into text
func NewDecodeError(serviceName, operation string, cause error) *ServiceError {
	message := "legacy page decode failed"
	if cause != nil {
		message = fmt.Sprintf("legacy page decode failed: %v", cause)
	}
	return NewServiceError(ErrorCategoryProcessing, CodeDecodeFailed, message, serviceName, operation, false, cause)
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// ClientMessage is the text placed in the error payload returned to API callers
func (e *ServiceError) ClientMessage() string {
	return UpstreamFailurePrefix + e.Message
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"timestamp":        e.Timestamp,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// WrapError wraps an existing error with service error context
func WrapError(err error, category ErrorCategory, code, serviceName, operation string, retryable bool) *ServiceError {
	if err == nil {
		return nil
	}

	// If it's already a ServiceError, just update the context
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		serviceErr.ServiceName = serviceName
		serviceErr.Operation = operation
		return serviceErr
	}

	return NewServiceError(category, code, err.Error(), serviceName, operation, retryable, err)
}

// ClientErrorMessage renders any pipeline error as the message sent to API callers
func ClientErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.ClientMessage()
	}
	return UpstreamFailurePrefix + err.Error()
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.IsRetryable()
	}

	// Default heuristics for standard errors
	errorMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "connection refused", "connection reset",
		"temporary failure", "service unavailable", "too many requests",
		"network", "dns", "socket",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errorMsg, pattern) {
			return true
		}
	}

	return false
}
