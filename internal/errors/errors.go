package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/standardbeagle/themescan/internal/types"
)

// Error types for the theme scanner
type ErrorType string

const (
	// Transport errors
	ErrorTypeFetch     ErrorType = "fetch"
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// Scan phase errors
	ErrorTypeTheme       ErrorType = "theme"
	ErrorTypeListing     ErrorType = "listing"
	ErrorTypeEnumeration ErrorType = "enumeration"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeCanceled    ErrorType = "canceled"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// ErrMaxRetries is returned when every attempt was rate limited
var ErrMaxRetries = errors.New("max retries exceeded")

// FetchError describes a failed request against the Shopify API
type FetchError struct {
	Type       ErrorType
	URL        string
	StatusCode int
	Attempts   int
	Underlying error
	Timestamp  time.Time
}

// NewFetchError creates a fetch error for url
func NewFetchError(url string, err error) *FetchError {
	errorType := ErrorTypeFetch
	if errors.Is(err, ErrMaxRetries) {
		errorType = ErrorTypeRateLimit
	}
	return &FetchError{
		Type:       errorType,
		URL:        url,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithStatus records the HTTP status the request ended with
func (e *FetchError) WithStatus(code int) *FetchError {
	e.StatusCode = code
	return e
}

// WithAttempts records how many attempts were made
func (e *FetchError) WithAttempts(attempts int) *FetchError {
	e.Attempts = attempts
	return e
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed with status %d: %v", e.Type, e.URL, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.URL, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *FetchError) Unwrap() error {
	return e.Underlying
}

// IsRateLimited reports whether the request gave up because of HTTP 429s
func (e *FetchError) IsRateLimited() bool {
	return e.Type == ErrorTypeRateLimit
}

// ScanError represents a failure in one phase of a scan
type ScanError struct {
	Type       ErrorType
	ScanType   types.ScanType
	Phase      types.ScanStatus
	Underlying error
	Timestamp  time.Time
}

// NewScanError creates a scan error for the given phase
func NewScanError(errorType ErrorType, scanType types.ScanType, phase types.ScanStatus, err error) *ScanError {
	return &ScanError{
		Type:       errorType,
		ScanType:   scanType,
		Phase:      phase,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ScanError) Error() string {
	if e.ScanType != "" {
		return fmt.Sprintf("%s scan failed during %s: %v", e.ScanType, e.Phase, e.Underlying)
	}
	return fmt.Sprintf("scan failed during %s: %v", e.Phase, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ScanError) Unwrap() error {
	return e.Underlying
}

// IsFatal reports whether the scan could not produce any results
func (e *ScanError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeTheme, ErrorTypeListing:
		return true
	default:
		return false
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config error for field %s: %v", e.Field, e.Underlying)
	}
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
