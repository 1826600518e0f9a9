package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Field kinds understood by the validator.
const (
	KindText   = "text"
	KindNumber = "number"
	KindDate   = "date"
	KindStatus = "status"
	KindEnum   = "enum"
)

// Field sources.
const (
	SourceText = "text" // rendered text of the node
	SourceHTML = "html" // inner HTML of the node
)

// Status values produced by status classifiers.
const (
	StatusOK     = "ok"
	StatusFailed = "falha"
)

// Schema describes how to reach and read one kind of page.
type Schema struct {
	// Name is the profile name, e.g. "registro".
	Name string

	// URL is the page to navigate to. {id} is replaced by the target ID and
	// {param} by the target parameter of the same name.
	URL string

	// IDPattern restricts acceptable target IDs. Empty accepts any.
	IDPattern *regexp.Regexp

	// ReadySelector must be present before anything else happens.
	ReadySelector string

	// UploadSelector, when set, receives the target's file.
	UploadSelector string

	// NotFoundSelectors and NotFoundTexts mark a page saying the target
	// does not exist.
	NotFoundSelectors []string
	NotFoundTexts     []string

	// Settle, when set, makes the orchestrator re-read the fields until the
	// reading is stable.
	Settle *SettleSpec

	// ListSelectors, when set, locate one node list shared by every field
	// that has an Nth and no selectors of its own. A reading takes all of
	// those fields from the same list.
	ListSelectors []string

	Fields []FieldSpec
}

// SettleSpec is the stability rule for pages that fill in progressively.
type SettleSpec struct {
	// MinResolved is how many fields must be resolved before a reading counts.
	MinResolved int
}

// FieldSpec locates and constrains one field.
type FieldSpec struct {
	Name string

	// Selectors are tried in order; the first one yielding a value wins.
	// Empty reads the field from the schema's ListSelectors.
	Selectors []string

	// Nth picks the nth (1-based) node of a list selector. Zero means the
	// selector must match exactly one node.
	Nth int

	// Source is SourceText (default) or SourceHTML.
	Source string

	// Classify maps the raw node content to the extracted value. An empty
	// result means the node is not resolved yet.
	Classify func(string) string `json:"-"`

	Kind     string
	Required bool

	// Pattern constrains text values.
	Pattern string

	// Min and Max bound number values.
	Min, Max *float64

	// Earliest and Latest bound date values ("2006-01-02" or "today").
	Earliest, Latest string

	// Enum lists the accepted values of an enum field (case-insensitive).
	Enum []string
}

// Field returns the spec of the named field.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// CheckTarget rejects targets this schema cannot serve.
func (s *Schema) CheckTarget(t ScrapeTarget) error {
	if s.IDPattern != nil && !s.IDPattern.MatchString(t.ID()) {
		return fmt.Errorf("target id %q does not match %s", t.ID(), s.IDPattern)
	}
	if s.UploadSelector != "" && t.FilePath() == "" {
		return fmt.Errorf("profile %s requires a file", s.Name)
	}
	return nil
}

// ResolveURL fills the URL template for the target.
func (s *Schema) ResolveURL(t ScrapeTarget) (string, error) {
	u := strings.ReplaceAll(s.URL, "{id}", url.PathEscape(t.ID()))
	for k, v := range t.params {
		u = strings.ReplaceAll(u, "{"+k+"}", url.PathEscape(v))
	}
	if strings.Contains(u, "{") {
		return "", fmt.Errorf("unresolved placeholder in %q", u)
	}
	if _, err := url.ParseRequestURI(u); err != nil {
		return "", fmt.Errorf("invalid target url %q: %w", u, err)
	}
	return u, nil
}

// ListField reports whether f is read from the shared node list.
func (s *Schema) ListField(f FieldSpec) bool {
	return len(s.ListSelectors) > 0 && f.Nth > 0 && len(f.Selectors) == 0
}

// Float returns a pointer to v, for FieldSpec bounds.
func Float(v float64) *float64 { return &v }
