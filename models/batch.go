package models

// Batch job statuses.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// BatchResponse is the immediate response for POST /api/v1/batch/validate.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Results   []*Conformity `json:"results,omitempty"`
}

// BatchJob tracks an in-progress batch validation.
type BatchJob struct {
	ID         string
	Status     string
	Total      int
	Completed  int
	Results    []*Conformity
	WebhookURL string
	CreatedAt  int64 // unix timestamp
}
