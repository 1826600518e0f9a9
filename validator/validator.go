// Package validator checks raw extractions against their schema. It never
// touches the network or a browser, and gives the same answer for the same
// input.
package validator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/use-agent/tcees/models"
)

// Validator validates extractions of one schema.
type Validator struct {
	schema   *models.Schema
	patterns map[string]*regexp.Regexp
	now      func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces the clock used to resolve "today" in date windows.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New prepares a validator for schema. Broken field specs are reported
// here rather than at validation time.
func New(schema *models.Schema, opts ...Option) (*Validator, error) {
	v := &Validator{
		schema:   schema,
		patterns: make(map[string]*regexp.Regexp),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	for _, f := range schema.Fields {
		switch f.Kind {
		case models.KindText, models.KindNumber, models.KindDate, models.KindStatus:
		case models.KindEnum:
			if len(f.Enum) == 0 {
				return nil, fmt.Errorf("validator: field %s: enum without values", f.Name)
			}
		default:
			return nil, fmt.Errorf("validator: field %s: unknown kind %q", f.Name, f.Kind)
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, fmt.Errorf("validator: field %s: %w", f.Name, err)
			}
			v.patterns[f.Name] = re
		}
		for _, bound := range []string{f.Earliest, f.Latest} {
			if _, err := v.bound(bound); err != nil {
				return nil, fmt.Errorf("validator: field %s: %w", f.Name, err)
			}
		}
	}
	return v, nil
}

// Schema returns the schema the validator checks against.
func (v *Validator) Schema() *models.Schema { return v.schema }

// Validate checks every field of raw. On failure the error is a
// *models.ValidationReport listing every failed field, and no record is
// returned. Keys of raw that the schema does not declare are ignored.
func (v *Validator) Validate(raw *models.RawExtraction) (*models.ValidatedRecord, error) {
	var fields map[string]string
	targetID := ""
	if raw != nil {
		fields = raw.Fields
		targetID = raw.TargetID
	}

	report := models.NewValidationReport(targetID, v.schema.Name)
	values := make(map[string]any, len(v.schema.Fields))

	for _, f := range v.schema.Fields {
		value := strings.TrimSpace(fields[f.Name])
		if value == "" {
			if f.Required {
				report.Fail(models.NewValidationError(f.Name, "", "required field not extracted", models.ErrMissingField))
			} else {
				report.Pass(f.Name)
			}
			continue
		}

		typed, ve := v.check(f, value)
		if ve != nil {
			report.Fail(ve)
			continue
		}
		report.Pass(f.Name)
		values[f.Name] = typed
	}

	if !report.OK() {
		return nil, report
	}
	return models.NewValidatedRecord(targetID, v.schema.Name, values), nil
}

func (v *Validator) check(f models.FieldSpec, value string) (any, *models.ValidationError) {
	switch f.Kind {
	case models.KindNumber:
		n, err := ParseNumber(value)
		if err != nil {
			return nil, models.NewValidationError(f.Name, value, "not a number", models.ErrTypeMismatch)
		}
		if f.Min != nil && n < *f.Min {
			return nil, models.NewValidationError(f.Name, value, fmt.Sprintf("below minimum %g", *f.Min), models.ErrOutOfRange)
		}
		if f.Max != nil && n > *f.Max {
			return nil, models.NewValidationError(f.Name, value, fmt.Sprintf("above maximum %g", *f.Max), models.ErrOutOfRange)
		}
		return n, nil

	case models.KindDate:
		d, err := ParseDate(value)
		if err != nil {
			return nil, models.NewValidationError(f.Name, value, "not a date", models.ErrTypeMismatch)
		}
		if lo, _ := v.bound(f.Earliest); lo != nil && d.Before(lo.Time) {
			return nil, models.NewValidationError(f.Name, value, "before "+lo.String(), models.ErrOutOfRange)
		}
		if hi, _ := v.bound(f.Latest); hi != nil && d.After(hi.Time) {
			return nil, models.NewValidationError(f.Name, value, "after "+hi.String(), models.ErrOutOfRange)
		}
		return d, nil

	case models.KindStatus:
		s := strings.ToLower(value)
		if s != models.StatusOK && s != models.StatusFailed {
			return nil, models.NewValidationError(f.Name, value, "status must be ok or falha", models.ErrTypeMismatch)
		}
		return s, nil

	case models.KindEnum:
		if !slices.ContainsFunc(f.Enum, func(e string) bool { return strings.EqualFold(e, value) }) {
			return nil, models.NewValidationError(f.Name, value, "not one of "+strings.Join(f.Enum, ", "), models.ErrOutOfRange)
		}
	}

	if re := v.patterns[f.Name]; re != nil && !re.MatchString(value) {
		return nil, models.NewValidationError(f.Name, value, "does not match "+re.String(), models.ErrOutOfRange)
	}
	return value, nil
}

// bound resolves a date window limit. Empty means unbounded.
func (v *Validator) bound(s string) (*models.Date, error) {
	switch s {
	case "":
		return nil, nil
	case "today":
		now := v.now().UTC()
		d := models.NewDate(now.Year(), now.Month(), now.Day())
		return &d, nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("invalid date bound %q", s)
	}
	return &d, nil
}
