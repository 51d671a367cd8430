package ebi

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxBodyInError bounds how much of an upstream body is copied into error messages.
const maxBodyInError = 500

// SubmissionError indicates the tool rejected job creation or returned no job id.
type SubmissionError struct {
	Tool       string
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s submission failed with HTTP %d and no job id", e.Tool, e.StatusCode)
	}
	return fmt.Sprintf("%s submission failed with HTTP %d: %s", e.Tool, e.StatusCode, e.Body)
}

// Rejected reports a definitive client-side rejection (bad input, policy), as
// opposed to an upstream outage.
func (e *SubmissionError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 408 && e.StatusCode != 429
}

// StatusError indicates the status endpoint answered with a non-success, non-404 response.
type StatusError struct {
	Tool       string
	JobID      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status check for %s failed with HTTP %d: %s", e.Tool, e.JobID, e.StatusCode, e.Body)
}

// ResultError indicates a finished job whose result could not be fetched or was empty.
type ResultError struct {
	Tool       string
	JobID      string
	ResultType string
	StatusCode int
	Body       string
}

func (e *ResultError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s result %s for %s is empty (HTTP %d)", e.Tool, e.ResultType, e.JobID, e.StatusCode)
	}
	return fmt.Sprintf("%s result %s for %s failed with HTTP %d: %s", e.Tool, e.ResultType, e.JobID, e.StatusCode, e.Body)
}

func truncate(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxBodyInError {
		return body
	}
	cut := maxBodyInError
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}
