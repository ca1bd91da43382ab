package types

import "time"

// JobStatus is the lifecycle state of a remote asynchronous job.
type JobStatus string

const (
	JobCreated    JobStatus = "CREATED"
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCanceled   JobStatus = "CANCELED"
	JobRejected   JobStatus = "REJECTED"
	JobTimeout    JobStatus = "TIMEOUT"
	JobUnknown    JobStatus = "UNKNOWN"
)

// Terminal reports whether no further transition can happen from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled, JobRejected, JobTimeout:
		return true
	default:
		return false
	}
}

// ParseJobStatus maps a provider status string onto JobStatus. Anything
// unrecognised becomes JobUnknown.
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case JobPending, JobProcessing, JobCompleted, JobFailed, JobCanceled, JobRejected:
		return JobStatus(s)
	default:
		return JobUnknown
	}
}

// JobHandle is what a provider returns on submit.
type JobHandle struct {
	ID        string
	Status    JobStatus
	CreatedAt time.Time
}

// JobReport is one status observation returned by a provider.
type JobReport struct {
	ID        string
	Status    JobStatus
	Output    string
	CreatedAt time.Time
	// Raw is the provider's own status string, kept for logs.
	Raw string
}

// Job is the poller's view of one remote operation.
type Job struct {
	ID          string        `json:"id"`
	Provider    string        `json:"provider"`
	Status      JobStatus     `json:"status"`
	Output      string        `json:"output,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	CreatedAt   time.Time     `json:"created_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
	Checks      int           `json:"checks"`
}
