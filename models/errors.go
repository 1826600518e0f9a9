package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	// Scrape failures surfaced by the orchestrator.
	ErrCodeTimeout            = "SCRAPE_TIMEOUT"
	ErrCodeElementNotFound    = "ELEMENT_NOT_FOUND"
	ErrCodeStructuralMismatch = "STRUCTURAL_MISMATCH"
	ErrCodeBrowserCrash       = "BROWSER_CRASH"
	ErrCodeTargetNotFound     = "TARGET_NOT_FOUND"
	ErrCodeNavigation         = "NAVIGATION_FAILED"

	ErrCodeValidation   = "VALIDATION_FAILED"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// Upload errors of POST /validate.
	ErrCodeNoFile       = "NO_FILE"
	ErrCodeNotPDF       = "NOT_PDF"
	ErrCodeFileTooLarge = "FILE_TOO_LARGE"
)

// Hints attached to network failures. They tell an operator why the host
// could not reach the portal.
const (
	HintNetworkBlocked    = "TCEES_NETWORK_BLOCKED"
	HintDNS               = "TCEES_DNS_ERROR"
	HintTimeout           = "TCEES_TIMEOUT"
	HintConnectionRefused = "TCEES_CONNECTION_REFUSED"
	HintConnectionClosed  = "TCEES_CONNECTION_CLOSED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Hint     string `json:"hint,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code     string
	Message  string
	Hint     string
	Attempts int
	Err      error // wrapped original error
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

// Transient reports whether a fresh attempt may succeed.
func (e *ScrapeError) Transient() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeBrowserCrash, ErrCodeNavigation:
		return true
	default:
		return false
	}
}

// WithHint returns e with the given hint set.
func (e *ScrapeError) WithHint(hint string) *ScrapeError {
	e.Hint = hint
	return e
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// AsScrapeError returns err as a *ScrapeError, wrapping unknown errors as
// INTERNAL_ERROR.
func AsScrapeError(err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return NewScrapeError(ErrCodeInternal, err.Error(), err)
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message, Hint: e.Hint, Attempts: e.Attempts}
}
