package phylogeny

import (
	"strings"

	"github.com/jonathan/bioview/internal/ebi"
	"github.com/jonathan/bioview/internal/jobtoken"
)

// Method selects how the tree is produced.
type Method string

const (
	// MethodClustalOmega uses the guide tree Clustal Omega computes alongside the alignment.
	MethodClustalOmega Method = ebi.ToolClustalOmega
	// MethodSimplePhylogeny aligns with Clustal Omega, then builds a neighbour-joining
	// tree with Simple Phylogeny.
	MethodSimplePhylogeny Method = ebi.ToolSimplePhylogeny
)

// ParseMethod returns the method named by s. Anything unrecognized, including the
// empty string, selects the two-stage pipeline.
func ParseMethod(s string) Method {
	if Method(strings.ToLower(strings.TrimSpace(s))) == MethodClustalOmega {
		return MethodClustalOmega
	}
	return MethodSimplePhylogeny
}

// Status is the caller-facing job status.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailure  Status = "FAILURE"
	StatusPending  Status = "PENDING"
)

// Envelope is returned by every submit and poll call. It is built fresh each time
// and never stored.
type Envelope struct {
	Status          Status         `json:"status"`
	JobID           string         `json:"jobId,omitempty"`
	Service         Method         `json:"service"`
	Stage           jobtoken.Stage `json:"stage,omitempty"`
	ExternalService string         `json:"externalService"`
	ExternalID      string         `json:"externalId"`
	ExternalURL     string         `json:"externalUrl"`
	AlignmentJobID  string         `json:"alignmentJobId"`
	TreeJobID       string         `json:"treeJobId,omitempty"`
	Result          string         `json:"result,omitempty"`
	Message         string         `json:"message,omitempty"`
}

// Terminal reports whether polling should stop.
func (e *Envelope) Terminal() bool {
	return e.Status == StatusFinished || e.Status == StatusFailure
}

// SubmitRequest is the body of a submission.
type SubmitRequest struct {
	Sequences []string `json:"sequences" validate:"required"`
	Method    string   `json:"method,omitempty"`
}
