package structure

import "fmt"

// InvalidIDError is an identifier matching no known shape.
type InvalidIDError struct {
	Input string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("%q is not a PDB id, UniProt accession or AlphaFold model id", e.Input)
}

// NotFoundError is an identifier the upstream has no record of.
type NotFoundError struct {
	ID     string
	Source string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s has no entry for %s", e.Source, e.ID)
}

// UpstreamError is an unexpected upstream response.
type UpstreamError struct {
	ID         string
	Source     string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s lookup for %s failed: %s", e.Source, e.ID, e.Message)
	}
	return fmt.Sprintf("%s lookup for %s failed with HTTP %d: %s", e.Source, e.ID, e.StatusCode, e.Message)
}
