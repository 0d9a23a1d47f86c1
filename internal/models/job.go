package models

import (
	"encoding/json"
	"time"
)

// JobStatus represents the status of an export job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents an asynchronous export job
type Job struct {
	ID             string          `json:"job_id" db:"id"`
	Status         JobStatus       `json:"status" db:"status"`
	Formats        []string        `json:"formats" db:"formats"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Request        json.RawMessage `json:"-" db:"request"`
	Results        []*ExportResult `json:"results,omitempty" db:"results"`
	TotalRows      int             `json:"total_rows" db:"total_rows"`
	Error          string          `json:"error,omitempty" db:"error"`
	DurationMs     int64           `json:"duration_ms,omitempty" db:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// DecodeRequest unmarshals the stored export request
func (j *Job) DecodeRequest() (*ExportRequest, error) {
	var req ExportRequest
	if err := json.Unmarshal(j.Request, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
