// Package phylogeny drives tree construction on the EBI tools. The orchestrator keeps
// no state between calls: the caller holds a job token that encodes where the
// pipeline is, and each poll either reports progress, advances the pipeline by one
// stage, or returns the final tree.
package phylogeny

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/bioview/internal/ebi"
	"github.com/jonathan/bioview/internal/fasta"
	"github.com/jonathan/bioview/internal/jobtoken"
)

// Sequence limits.
const (
	MinSequences             = 2
	DefaultMaxSequences      = 100
	DefaultMaxSequenceLength = 20000
)

// DefaultPollInterval paces Run when it is given a non-positive interval.
const DefaultPollInterval = 5 * time.Second

// RemoteTool is the part of an EBI tool client the orchestrator uses.
type RemoteTool interface {
	Name() string
	Submit(ctx context.Context, params url.Values) (string, error)
	Status(ctx context.Context, jobID string) (ebi.Status, error)
	Result(ctx context.Context, jobID, resultType string) (string, error)
	JobURL(jobID string) string
}

// JobRecorder records remote submissions so jobs orphaned by an abandoned pipeline
// can be traced. parentID is the alignment job a tree job was built from.
type JobRecorder interface {
	RecordRemoteJob(ctx context.Context, tool, externalID, parentID string) error
}

// Options configures an Orchestrator.
type Options struct {
	MaxSequences      int
	MaxSequenceLength int
	Recorder          JobRecorder
}

// Orchestrator submits and polls phylogeny jobs.
type Orchestrator struct {
	clustal       RemoteTool
	simple        RemoteTool
	recorder      JobRecorder
	validate      *validator.Validate
	sequenceRules string
}

// New creates an orchestrator over the Clustal Omega and Simple Phylogeny tools.
func New(clustal, simple RemoteTool, opts Options) *Orchestrator {
	if opts.MaxSequences <= 0 {
		opts.MaxSequences = DefaultMaxSequences
	}
	if opts.MaxSequenceLength <= 0 {
		opts.MaxSequenceLength = DefaultMaxSequenceLength
	}
	return &Orchestrator{
		clustal:       clustal,
		simple:        simple,
		recorder:      opts.Recorder,
		validate:      validator.New(),
		sequenceRules: fmt.Sprintf("required,min=%d,max=%d,dive,required,max=%d", MinSequences, opts.MaxSequences, opts.MaxSequenceLength),
	}
}

// Submit validates the sequences and starts the alignment job.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Envelope, error) {
	seqs, err := o.cleanSequences(req.Sequences)
	if err != nil {
		return nil, err
	}
	method := ParseMethod(req.Method)

	clustalID, err := o.clustal.Submit(ctx, url.Values{"sequence": {fasta.Build(seqs)}})
	if err != nil {
		log.Printf("[phylogeny] alignment submission failed: %v", err)
		return nil, err
	}
	o.record(ctx, o.clustal.Name(), clustalID, "")
	log.Printf("[phylogeny] submitted %d sequences to %s as %s (method=%s)", len(seqs), o.clustal.Name(), clustalID, method)

	if method == MethodClustalOmega {
		return o.directEnvelope(clustalID), nil
	}

	token, err := jobtoken.Encode(jobtoken.NewAlignmentState(clustalID))
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipeline token: %w", err)
	}
	return o.alignmentEnvelope(token, clustalID), nil
}

// Poll reports the progress of a job token. Remote failures are returned as FAILURE
// envelopes; the error is only set for an empty job id.
func (o *Orchestrator) Poll(ctx context.Context, jobID string) (*Envelope, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, &ValidationError{Field: "jobId", Message: "jobId is required"}
	}

	tok := jobtoken.Parse(jobID)
	state := StateOf(tok)
	handler, ok := pollHandlers[state]
	if !ok {
		return o.failure(o.directEnvelope(tok.Raw), fmt.Errorf("no handler for state %s", state)), nil
	}
	return handler(o, ctx, tok), nil
}

// Run submits and then polls every interval until the job is terminal. progress is
// called with each envelope, including the first. A non-positive interval means
// DefaultPollInterval.
func (o *Orchestrator) Run(ctx context.Context, req SubmitRequest, interval time.Duration, progress func(*Envelope)) (*Envelope, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	env, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(env)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !env.Terminal() {
		select {
		case <-ctx.Done():
			return env, ctx.Err()
		case <-ticker.C:
		}

		env, err = o.Poll(ctx, env.JobID)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return env, ctx.Err()
		}
		if progress != nil {
			progress(env)
		}
	}
	return env, nil
}

func (o *Orchestrator) cleanSequences(raw []string) ([]string, error) {
	seqs := make([]string, 0, len(raw))
	for _, s := range raw {
		if cleaned := fasta.Clean(s); cleaned != "" {
			seqs = append(seqs, cleaned)
		}
	}
	if err := o.validate.Var(seqs, o.sequenceRules); err != nil {
		return nil, fromValidator(err)
	}
	return seqs, nil
}

func (o *Orchestrator) record(ctx context.Context, tool, externalID, parentID string) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordRemoteJob(ctx, tool, externalID, parentID); err != nil {
		log.Printf("[phylogeny] failed to record %s job %s: %v", tool, externalID, err)
	}
}

// directEnvelope describes a bare Clustal Omega job whose phylotree is the result.
func (o *Orchestrator) directEnvelope(clustalID string) *Envelope {
	return &Envelope{
		Status:          StatusRunning,
		JobID:           clustalID,
		Service:         MethodClustalOmega,
		Stage:           jobtoken.StageTree,
		ExternalService: o.clustal.Name(),
		ExternalID:      clustalID,
		ExternalURL:     o.clustal.JobURL(clustalID),
		AlignmentJobID:  clustalID,
	}
}

func (o *Orchestrator) alignmentEnvelope(token, clustalID string) *Envelope {
	return &Envelope{
		Status:          StatusRunning,
		JobID:           token,
		Service:         MethodSimplePhylogeny,
		Stage:           jobtoken.StageAlignment,
		ExternalService: o.clustal.Name(),
		ExternalID:      clustalID,
		ExternalURL:     o.clustal.JobURL(clustalID),
		AlignmentJobID:  clustalID,
	}
}

func (o *Orchestrator) treeEnvelope(token string, s jobtoken.State) *Envelope {
	env := &Envelope{
		Status:          StatusRunning,
		JobID:           token,
		Service:         MethodSimplePhylogeny,
		Stage:           jobtoken.StageTree,
		ExternalService: o.simple.Name(),
		ExternalID:      s.SimpleJobID,
		AlignmentJobID:  s.ClustalJobID,
		TreeJobID:       s.SimpleJobID,
	}
	if s.SimpleJobID != "" {
		env.ExternalURL = o.simple.JobURL(s.SimpleJobID)
	}
	return env
}

func (o *Orchestrator) failure(env *Envelope, err error) *Envelope {
	env.Status = StatusFailure
	env.Result = ""
	env.Message = failureMessage(err)
	return env
}
