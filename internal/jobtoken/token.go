// Package jobtoken encodes the position of the two-stage phylogeny pipeline into an
// opaque string, so the caller carries all pipeline state between polls.
//
// A token is either an external job id issued by a remote tool, or a pipeline token:
// unpadded base64url of a JSON object tagged with version and method. Decoding never
// fails loudly; anything that is not a well-formed pipeline token is external.
package jobtoken

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/bioview/internal/schemas"
)

// Version is the current pipeline token format.
const Version = 1

// MethodSimplePhylogeny tags tokens produced by the Clustal Omega → Simple Phylogeny pipeline.
const MethodSimplePhylogeny = "simple_phylogeny"

// Stage is the remote job the pipeline is waiting on.
type Stage string

const (
	// StageAlignment waits on the Clustal Omega alignment job.
	StageAlignment Stage = "alignment"
	// StageTree waits on the Simple Phylogeny tree job.
	StageTree Stage = "tree"
)

// State is the decoded content of a pipeline token.
type State struct {
	Version      int    `json:"version"`
	Method       string `json:"method"`
	Stage        Stage  `json:"stage"`
	ClustalJobID string `json:"clustalJobId"`
	SimpleJobID  string `json:"simpleJobId,omitempty"`
}

// NewAlignmentState returns the state right after the alignment job was submitted.
func NewAlignmentState(clustalJobID string) State {
	return State{
		Version:      Version,
		Method:       MethodSimplePhylogeny,
		Stage:        StageAlignment,
		ClustalJobID: clustalJobID,
	}
}

// Advance moves an alignment state to the tree stage.
func (s State) Advance(simpleJobID string) State {
	s.Stage = StageTree
	s.SimpleJobID = simpleJobID
	return s
}

// Valid checks the stage invariant: SimpleJobID is set if and only if Stage is tree.
func (s State) Valid() error {
	if s.ClustalJobID == "" {
		return fmt.Errorf("pipeline token has no clustalJobId")
	}
	switch s.Stage {
	case StageAlignment:
		if s.SimpleJobID != "" {
			return fmt.Errorf("pipeline token at stage %q must not carry simpleJobId", s.Stage)
		}
	case StageTree:
		if s.SimpleJobID == "" {
			return fmt.Errorf("pipeline token at stage %q is missing simpleJobId", s.Stage)
		}
	default:
		return fmt.Errorf("pipeline token has unknown stage %q", s.Stage)
	}
	return nil
}

// Encode serializes a state. Version and method are always stamped with the
// current values.
func Encode(s State) (string, error) {
	s.Version = Version
	s.Method = MethodSimplePhylogeny
	if err := s.Valid(); err != nil {
		return "", err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pipeline token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a pipeline token. The boolean is false for anything that is not a
// pipeline token of the current version and method, including bare remote job ids.
// Decode does not check the stage invariant; callers use State.Valid.
func Decode(token string) (State, bool) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" {
		return State{}, false
	}

	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return State{}, false
	}
	if err := schemas.Validate(schemas.PipelineToken, data); err != nil {
		return State{}, false
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, false
	}
	if s.Version != Version || s.Method != MethodSimplePhylogeny {
		return State{}, false
	}
	return s, true
}
