package ebi

import "strings"

// Status is the state of a remote EBI job.
type Status string

// Job statuses reported by the EBI job dispatcher status endpoint.
const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailure  Status = "FAILURE"
	StatusPending  Status = "PENDING"
	StatusErrored  Status = "ERROR"
)

// ParseStatus normalizes a status body. An empty body and NOT_FOUND are PENDING,
// because a freshly submitted job may not be queryable yet; QUEUED is RUNNING.
// Unrecognized tokens are returned upper-cased and treated as failures by callers.
func ParseStatus(body string) Status {
	s := strings.ToUpper(strings.TrimSpace(body))
	switch s {
	case "", "NOT_FOUND":
		return StatusPending
	case "QUEUED":
		return StatusRunning
	default:
		return Status(s)
	}
}

// InProgress reports whether the job may still finish.
func (s Status) InProgress() bool {
	return s == StatusRunning || s == StatusPending
}

// Terminal reports whether the job will not change status again.
func (s Status) Terminal() bool {
	return !s.InProgress()
}
