package db

import (
	"time"

	"github.com/google/uuid"
)

// RemoteJob is one logged submission to an EBI tool
type RemoteJob struct {
	ID          uuid.UUID `json:"id"`
	Tool        string    `json:"tool"`
	ExternalID  string    `json:"external_id"`
	ParentID    *string   `json:"parent_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// RemoteJobFilters holds optional filters for listing remote jobs
type RemoteJobFilters struct {
	Tool     string
	ParentID string
	Limit    int
}
