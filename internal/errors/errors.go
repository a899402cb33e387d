package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeConfig      ErrorType = "CONFIG"
	ErrTypeValidation  ErrorType = "VALIDATION"
	ErrTypeDataQuality ErrorType = "DATA_QUALITY"
	ErrTypeGeometry    ErrorType = "GEOMETRY"
	ErrTypeSync        ErrorType = "SYNC"
	ErrTypeCalibration ErrorType = "CALIBRATION"
	ErrTypeNotFound    ErrorType = "NOT_FOUND"
	ErrTypeStorage     ErrorType = "STORAGE"
	ErrTypeParsing     ErrorType = "PARSING"
)

// AppError represents an application-specific error. Context carries the
// identifiers a user needs to locate the problem (channel, series, segment,
// file, tap).
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Type, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeValidation, message, cause)
}

// NewDataQualityError creates an error for unusable measurement data
func NewDataQualityError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDataQuality, message, cause)
}

// NewGeometryError creates an airfoil geometry error
func NewGeometryError(message string, cause error) *AppError {
	return NewAppError(ErrTypeGeometry, message, cause)
}

// NewSyncError creates a time-alignment error
func NewSyncError(message string, cause error) *AppError {
	return NewAppError(ErrTypeSync, message, cause)
}

// NewCalibrationError creates a calibration error
func NewCalibrationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeCalibration, message, cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or ""
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// Is reports whether err carries an AppError of the given type
func Is(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}
