package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNetwork      = "NETWORK_ERROR"
	ErrCodeHTTPStatus   = "HTTP_STATUS"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeBrowser      = "BROWSER_ERROR"
	ErrCodeNoData       = "NO_DATA"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeUnavailable  = "DATA_UNAVAILABLE"
	ErrCodeUnsupported  = "UNSUPPORTED_MEDIA"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeConversion   = "CONVERSION_FAILED"
	ErrCodePersist      = "PERSIST_FAILED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// LLM-related error codes for the structuring fallback.
	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"
	ErrCodeLLMDisabled    = "LLM_DISABLED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// HTTPStatusError reports a non-2xx response from the plain fetch adapter.
// Callers decide whether the status is fatal or just a signal.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// ErrorCode extracts the code of a wrapped ScrapeError, or ErrCodeInternal.
func ErrorCode(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HTTPStatusFor maps an error code to the HTTP status the API answers with.
func HTTPStatusFor(code string) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeLLMAuthFailure:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnsupported:
		return http.StatusUnsupportedMediaType
	case ErrCodeRateLimited, ErrCodeLLMRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUnavailable, ErrCodeNoData:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeNetwork, ErrCodeHTTPStatus, ErrCodeNavigation, ErrCodeBrowser, ErrCodeLLMFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
