package models

import "encoding/json"

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether s ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobStatusResponse is returned by the status endpoint and carried by job stream frames.
//
// Status is kept as the raw server string; anything other than succeeded or failed means the job is still running.
type JobStatusResponse struct {
	JobID  string          `json:"job_id,omitempty"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
