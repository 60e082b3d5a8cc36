// Package errors provides structured error types for partprune.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryPlanner    ErrorCategory = "PLANNER"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidScheme   = "INVALID_SCHEME"
	CodeInvalidBounds   = "INVALID_BOUNDS"
	CodeInvalidConfig   = "INVALID_CONFIG"
	CodeInvalidDocument = "INVALID_DOCUMENT"
	CodeInvalidRequest  = "INVALID_REQUEST"

	// Catalog codes
	CodeRelationNotFound = "RELATION_NOT_FOUND"
	CodeRelationExists   = "RELATION_EXISTS"
	CodeCatalogBusy      = "CATALOG_BUSY"

	// Storage codes
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeDownloadFailed     = "DOWNLOAD_FAILED"
	CodeObjectNotFound     = "OBJECT_NOT_FOUND"
	CodePreconditionFailed = "PRECONDITION_FAILED"

	// Query codes
	CodeParseError        = "PARSE_ERROR"
	CodeUnsupportedSyntax = "UNSUPPORTED_SYNTAX"

	// Planner codes
	CodeInvariantViolation = "INVARIANT_VIOLATION"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryCatalog && code == CodeCatalogBusy:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewQueryError(code, message string) *Error {
	return New(ErrCategoryQuery, code, message)
}

// NewInvariantError reports an internal consistency fault detected while
// planning. Pruning uncertainty is never reported this way.
func NewInvariantError(message string) *Error {
	return New(ErrCategoryPlanner, CodeInvariantViolation, message)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
