package phylogeny

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/jonathan/bioview/internal/ebi"
	"github.com/jonathan/bioview/internal/jobtoken"
)

// State is a position in the pipeline.
//
//	SubmitAlignment -> PollAlignment -> PollTree -> Done
//	SubmitAlignment -> PollDirect -> Done
//
// Failure is reachable from every polling state.
type State string

const (
	StateSubmitAlignment State = "SUBMIT_ALIGNMENT"
	StatePollAlignment   State = "POLL_ALIGNMENT"
	StatePollTree        State = "POLL_TREE"
	StatePollDirect      State = "POLL_DIRECT"
	StateDone            State = "DONE"
	StateFailure         State = "FAILURE"
)

// Terminal reports whether no further poll is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailure
}

// StateOf returns the polling state a token is in.
func StateOf(tok jobtoken.Token) State {
	switch tok.Kind {
	case jobtoken.KindExternal:
		return StatePollDirect
	case jobtoken.KindPipeline:
		switch tok.State.Stage {
		case jobtoken.StageAlignment:
			return StatePollAlignment
		case jobtoken.StageTree:
			return StatePollTree
		}
	}
	return StateFailure
}

type pollHandler func(o *Orchestrator, ctx context.Context, tok jobtoken.Token) *Envelope

// pollHandlers has exactly one entry per polling state.
var pollHandlers = map[State]pollHandler{
	StatePollAlignment: (*Orchestrator).pollAlignment,
	StatePollTree:      (*Orchestrator).pollTree,
	StatePollDirect:    (*Orchestrator).pollDirect,
}

// pollAlignment checks the Clustal Omega job of a pipeline token. When it has
// finished, the alignment is submitted to Simple Phylogeny and the caller receives a
// tree-stage token.
//
// Two concurrent polls of the same token can both observe FINISHED and both submit
// a tree job. Nothing de-duplicates them; each token they return is valid.
func (o *Orchestrator) pollAlignment(ctx context.Context, tok jobtoken.Token) *Envelope {
	st := tok.State
	env := o.alignmentEnvelope(tok.Raw, st.ClustalJobID)
	if err := st.Valid(); err != nil {
		return o.failure(env, &TokenError{Token: tok.Raw, Reason: err.Error()})
	}

	status, err := o.clustal.Status(ctx, st.ClustalJobID)
	if err != nil {
		log.Printf("[phylogeny] alignment status for %s failed: %v", st.ClustalJobID, err)
		return o.failure(env, err)
	}

	switch {
	case status == ebi.StatusFinished:
	case status.InProgress():
		return env
	default:
		return o.failure(env, fmt.Errorf("alignment job %s ended with status %s", st.ClustalJobID, status))
	}

	alignment, err := o.clustal.Result(ctx, st.ClustalJobID, ebi.ResultAlignment)
	if err != nil {
		log.Printf("[phylogeny] alignment result for %s failed: %v", st.ClustalJobID, err)
		return o.failure(env, err)
	}

	simpleID, err := o.simple.Submit(ctx, url.Values{
		"sequence":   {alignment},
		"tree":       {"phylip"},
		"clustering": {"Neighbour-joining"},
		"kimura":     {"false"},
	})
	if err != nil {
		log.Printf("[phylogeny] tree submission for %s failed: %v", st.ClustalJobID, err)
		return o.failure(env, err)
	}
	o.record(ctx, o.simple.Name(), simpleID, st.ClustalJobID)

	next := st.Advance(simpleID)
	token, err := jobtoken.Encode(next)
	if err != nil {
		return o.failure(env, fmt.Errorf("failed to encode pipeline token: %w", err))
	}
	log.Printf("[phylogeny] alignment %s finished, tree job %s submitted", st.ClustalJobID, simpleID)
	return o.treeEnvelope(token, next)
}

// pollTree checks the Simple Phylogeny job and returns the tree once finished.
func (o *Orchestrator) pollTree(ctx context.Context, tok jobtoken.Token) *Envelope {
	st := tok.State
	env := o.treeEnvelope(tok.Raw, st)
	if err := st.Valid(); err != nil {
		return o.failure(env, &TokenError{Token: tok.Raw, Reason: err.Error()})
	}

	status, err := o.simple.Status(ctx, st.SimpleJobID)
	if err != nil {
		log.Printf("[phylogeny] tree status for %s failed: %v", st.SimpleJobID, err)
		return o.failure(env, err)
	}

	switch {
	case status == ebi.StatusFinished:
	case status.InProgress():
		return env
	default:
		return o.failure(env, fmt.Errorf("tree job %s ended with status %s", st.SimpleJobID, status))
	}

	tree, err := o.simple.Result(ctx, st.SimpleJobID, ebi.ResultTree)
	if err != nil {
		log.Printf("[phylogeny] tree result for %s failed: %v", st.SimpleJobID, err)
		return o.failure(env, err)
	}

	log.Printf("[phylogeny] tree job %s finished", st.SimpleJobID)
	env.Status = StatusFinished
	env.Result = tree
	return env
}

// pollDirect checks a bare Clustal Omega job and returns its guide tree.
func (o *Orchestrator) pollDirect(ctx context.Context, tok jobtoken.Token) *Envelope {
	jobID := tok.ExternalID
	env := o.directEnvelope(jobID)

	status, err := o.clustal.Status(ctx, jobID)
	if err != nil {
		log.Printf("[phylogeny] status for %s failed: %v", jobID, err)
		return o.failure(env, err)
	}

	switch {
	case status == ebi.StatusFinished:
	case status.InProgress():
		return env
	default:
		return o.failure(env, fmt.Errorf("job %s ended with status %s", jobID, status))
	}

	tree, err := o.clustal.Result(ctx, jobID, ebi.ResultPhylotree)
	if err != nil {
		log.Printf("[phylogeny] phylotree for %s failed: %v", jobID, err)
		return o.failure(env, err)
	}

	log.Printf("[phylogeny] job %s finished", jobID)
	env.Status = StatusFinished
	env.Result = tree
	return env
}

// NextState returns where the pipeline stands after the caller received env.
func NextState(env *Envelope) State {
	switch env.Status {
	case StatusFinished:
		return StateDone
	case StatusFailure:
		return StateFailure
	}
	if env.JobID == "" {
		return StateSubmitAlignment
	}
	return StateOf(jobtoken.Parse(env.JobID))
}
