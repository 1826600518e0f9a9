package models

import (
	"encoding/json"
	"time"
)

// RawExtraction is what the orchestrator read from the page. Nothing about
// it is guaranteed: fields may be missing or malformed.
type RawExtraction struct {
	TargetID    string            `json:"target_id"`
	Profile     string            `json:"profile"`
	Fields      map[string]string `json:"fields"`
	PageText    string            `json:"-"`
	Attempts    int               `json:"attempts"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// Date is a calendar date without time of day.
type Date struct {
	time.Time
}

// NewDate returns the date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Equal reports whether both dates are the same day.
func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

func (d Date) String() string { return d.Format(time.DateOnly) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// ValidatedRecord is an extraction that passed every check. Values are
// typed: float64 for numbers, Date for dates and string otherwise. It
// cannot be modified after construction.
type ValidatedRecord struct {
	targetID    string
	profile     string
	fields      map[string]any
	validatedAt time.Time
}

// NewValidatedRecord copies fields into a new record.
func NewValidatedRecord(targetID, profile string, fields map[string]any) *ValidatedRecord {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &ValidatedRecord{
		targetID:    targetID,
		profile:     profile,
		fields:      cp,
		validatedAt: time.Now().UTC(),
	}
}

func (r *ValidatedRecord) TargetID() string       { return r.targetID }
func (r *ValidatedRecord) Profile() string        { return r.profile }
func (r *ValidatedRecord) ValidatedAt() time.Time { return r.validatedAt }

// Get returns the typed value of a field.
func (r *ValidatedRecord) Get(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// String returns a string field, or "" when absent or not a string.
func (r *ValidatedRecord) String(name string) string {
	s, _ := r.fields[name].(string)
	return s
}

// Fields returns a copy of all typed values.
func (r *ValidatedRecord) Fields() map[string]any {
	cp := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		cp[k] = v
	}
	return cp
}

func (r *ValidatedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TargetID    string         `json:"target_id"`
		Profile     string         `json:"profile"`
		Fields      map[string]any `json:"fields"`
		ValidatedAt time.Time      `json:"validated_at"`
	}{r.targetID, r.profile, r.fields, r.validatedAt})
}
