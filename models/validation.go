package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validation failure kinds.
const (
	ValidationMissingField = "MISSING_FIELD"
	ValidationTypeMismatch = "TYPE_MISMATCH"
	ValidationOutOfRange   = "OUT_OF_RANGE"
)

// Sentinel errors for validation failures.
var (
	ErrMissingField = errors.New("missing field")
	ErrTypeMismatch = errors.New("type mismatch")
	ErrOutOfRange   = errors.New("out of range")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s: %s (value=%q)", e.Wrapped, e.Field, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// Kind returns the API code of the wrapped sentinel.
func (e *ValidationError) Kind() string {
	switch {
	case errors.Is(e.Wrapped, ErrMissingField):
		return ValidationMissingField
	case errors.Is(e.Wrapped, ErrTypeMismatch):
		return ValidationTypeMismatch
	default:
		return ValidationOutOfRange
	}
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, reason string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason, Wrapped: wrapped}
}

// FieldCheck is the verdict for one field.
type FieldCheck struct {
	Passed bool   `json:"passed"`
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ValidationReport lists the verdict of every field of a rejected
// extraction. It is returned as an error by the validator.
type ValidationReport struct {
	TargetID string                `json:"target_id"`
	Profile  string                `json:"profile"`
	Fields   map[string]FieldCheck `json:"fields"`

	errs []*ValidationError
}

// NewValidationReport creates an empty report.
func NewValidationReport(targetID, profile string) *ValidationReport {
	return &ValidationReport{
		TargetID: targetID,
		Profile:  profile,
		Fields:   make(map[string]FieldCheck),
	}
}

// Pass records a passing field.
func (r *ValidationReport) Pass(field string) {
	r.Fields[field] = FieldCheck{Passed: true}
}

// Fail records a failing field.
func (r *ValidationReport) Fail(ve *ValidationError) {
	r.Fields[ve.Field] = FieldCheck{Kind: ve.Kind(), Reason: ve.Reason}
	r.errs = append(r.errs, ve)
}

// OK reports whether no field failed.
func (r *ValidationReport) OK() bool {
	return len(r.errs) == 0
}

// Failures returns the names of the failed fields, sorted.
func (r *ValidationReport) Failures() []string {
	names := make([]string, 0, len(r.errs))
	for _, ve := range r.errs {
		names = append(names, ve.Field)
	}
	sort.Strings(names)
	return names
}

// FailuresOf returns the failed fields of the given kind, sorted.
func (r *ValidationReport) FailuresOf(kind string) []string {
	var names []string
	for _, ve := range r.errs {
		if ve.Kind() == kind {
			names = append(names, ve.Field)
		}
	}
	sort.Strings(names)
	return names
}

func (r *ValidationReport) Error() string {
	parts := make([]string, 0, len(r.errs))
	for _, name := range r.Failures() {
		parts = append(parts, name+": "+r.Fields[name].Kind)
	}
	return fmt.Sprintf("validation failed for %s (%s): %s", r.TargetID, r.Profile, strings.Join(parts, ", "))
}

// Unwrap exposes the individual field errors to errors.Is / errors.As.
func (r *ValidationReport) Unwrap() []error {
	out := make([]error, len(r.errs))
	for i, ve := range r.errs {
		out[i] = ve
	}
	return out
}
