package models

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// ID identifies the record on the portal, e.g. "proc-12345". Required.
	ID string `json:"id" binding:"required"`

	// Profile selects the page schema. Default: "registro".
	Profile string `json:"profile,omitempty" binding:"omitempty,oneof=registro"`

	// Params fill additional placeholders of the profile URL template.
	Params map[string]string `json:"params,omitempty"`

	// MaxAge enables the result cache: a validated result younger than
	// MaxAge milliseconds is returned without scraping. 0 disables it.
	MaxAge int64 `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	if r.Profile == "" {
		r.Profile = ProfileRecord
	}
}

// Profile names.
const (
	ProfileRecord     = "registro"
	ProfileConformity = "conformidade"
)
