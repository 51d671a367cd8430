package jobtoken

import "strings"

// Kind discriminates the two token shapes.
type Kind string

const (
	// KindExternal is a job id issued by a remote tool.
	KindExternal Kind = "external"
	// KindPipeline is an encoded pipeline State.
	KindPipeline Kind = "pipeline"
)

// Token is a parsed job token. State is only meaningful for KindPipeline and
// ExternalID only for KindExternal.
type Token struct {
	Kind       Kind
	Raw        string
	ExternalID string
	State      State
}

// Parse classifies a raw token string.
func Parse(raw string) Token {
	raw = strings.TrimSpace(raw)
	if s, ok := Decode(raw); ok {
		return Token{Kind: KindPipeline, Raw: raw, State: s}
	}
	return Token{Kind: KindExternal, Raw: raw, ExternalID: raw}
}

// External wraps a remote job id as a token.
func External(jobID string) Token {
	return Token{Kind: KindExternal, Raw: jobID, ExternalID: jobID}
}
