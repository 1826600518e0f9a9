package models

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success is true only when the record was scraped and validated.
	Success bool `json:"success"`

	// State is the terminal lifecycle state of the request.
	State State `json:"state"`

	// Record holds the typed fields of a validated record.
	Record *ValidatedRecord `json:"record,omitempty"`

	// Report lists per-field verdicts when validation failed.
	Report *ValidationReport `json:"report,omitempty"`

	// Attempts is the number of scrape attempts made. Zero on a cache hit.
	Attempts int `json:"attempts"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// ScrapeMs covers every attempt including backoff waits.
	ScrapeMs int64 `json:"scrape_ms"`

	// ValidateMs is the time spent validating the extraction.
	ValidateMs int64 `json:"validate_ms"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"` // "ok" or "degraded"
	Service   string    `json:"service"`
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`

	// Upstream is set when the portal reachability probe was requested.
	Upstream *UpstreamStatus `json:"upstream,omitempty"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	Capacity  int   `json:"capacity"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	Created   int64 `json:"created"`
	Destroyed int64 `json:"destroyed"`
}

// UpstreamStatus is the outcome of probing the portal over HTTPS.
type UpstreamStatus struct {
	URL        string `json:"url"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	Title      string `json:"title,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
	Hint       string `json:"hint,omitempty"`
	Error      string `json:"error,omitempty"`
}
