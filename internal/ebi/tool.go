// Package ebi is a client for the EBI Job Dispatcher REST tools (Clustal Omega,
// Simple Phylogeny). Each tool exposes run, status and result endpoints under a
// common base URL.
package ebi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/bioview/internal/fetch"
)

// Tool names as used in envelopes and logs.
const (
	ToolClustalOmega    = "clustalo"
	ToolSimplePhylogeny = "simple_phylogeny"
)

// Default endpoints.
const (
	DefaultClustalOmegaURL    = "https://www.ebi.ac.uk/Tools/services/rest/clustalo"
	DefaultSimplePhylogenyURL = "https://www.ebi.ac.uk/Tools/services/rest/simple_phylogeny"
	DefaultEmail              = "bioview@example.org"
)

// Result types used by the phylogeny pipeline.
const (
	ResultAlignment = "fa"
	ResultPhylotree = "phylotree"
	ResultTree      = "tree"
)

// Default per-endpoint timeouts.
const (
	DefaultSubmitTimeout = 20 * time.Second
	DefaultStatusTimeout = 10 * time.Second
	DefaultResultTimeout = 60 * time.Second
)

// Config configures a Tool.
type Config struct {
	BaseURL string
	// WebURL is a printf pattern with one %s for the job id, pointing at the
	// human-readable job page. Empty means the status endpoint is used.
	WebURL        string
	Email         string
	HTTPClient    *http.Client
	SubmitTimeout time.Duration
	StatusTimeout time.Duration
	ResultTimeout time.Duration
	Retries       int
	RetryDelay    time.Duration
}

// Tool is one EBI REST tool.
type Tool struct {
	name    string
	baseURL string
	webURL  string
	email   string
	client  *http.Client
	submit  fetch.RetryOptions
	status  fetch.RetryOptions
	result  fetch.RetryOptions
}

// NewTool creates a client for the tool at cfg.BaseURL.
func NewTool(name string, cfg Config) *Tool {
	email := cfg.Email
	if email == "" {
		email = DefaultEmail
	}
	retry := func(timeout, fallback time.Duration) fetch.RetryOptions {
		if timeout <= 0 {
			timeout = fallback
		}
		return fetch.RetryOptions{Timeout: timeout, Retries: cfg.Retries, RetryDelay: cfg.RetryDelay}
	}
	return &Tool{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		webURL:  cfg.WebURL,
		email:   email,
		client:  cfg.HTTPClient,
		submit:  retry(cfg.SubmitTimeout, DefaultSubmitTimeout),
		status:  retry(cfg.StatusTimeout, DefaultStatusTimeout),
		result:  retry(cfg.ResultTimeout, DefaultResultTimeout),
	}
}

// NewClustalOmega creates the Clustal Omega tool client.
func NewClustalOmega(cfg Config) *Tool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClustalOmegaURL
	}
	if cfg.WebURL == "" && cfg.BaseURL == DefaultClustalOmegaURL {
		cfg.WebURL = "https://www.ebi.ac.uk/jdispatcher/msa/clustalo/summary?jobId=%s"
	}
	return NewTool(ToolClustalOmega, cfg)
}

// NewSimplePhylogeny creates the Simple Phylogeny tool client.
func NewSimplePhylogeny(cfg Config) *Tool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSimplePhylogenyURL
	}
	if cfg.WebURL == "" && cfg.BaseURL == DefaultSimplePhylogenyURL {
		cfg.WebURL = "https://www.ebi.ac.uk/jdispatcher/phylogeny/simple_phylogeny/summary?jobId=%s"
	}
	return NewTool(ToolSimplePhylogeny, cfg)
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return t.name
}

// JobURL returns a link to the job for display.
func (t *Tool) JobURL(jobID string) string {
	if t.webURL != "" {
		return fmt.Sprintf(t.webURL, url.QueryEscape(jobID))
	}
	return t.baseURL + "/status/" + url.PathEscape(jobID)
}

// Submit posts a job and returns its id. The contact email required by EBI is added
// to params.
func (t *Tool) Submit(ctx context.Context, params url.Values) (string, error) {
	form := url.Values{}
	for k, v := range params {
		form[k] = append([]string(nil), v...)
	}
	form.Set("email", t.email)

	resp, err := fetch.Do(ctx, t.client, fetch.PostForm(t.baseURL+"/run", form), &t.submit)
	if err != nil {
		return "", fmt.Errorf("%s submission: %w", t.name, err)
	}

	jobID := resp.Text()
	if !resp.OK() {
		return "", &SubmissionError{Tool: t.name, StatusCode: resp.StatusCode, Body: truncate(jobID)}
	}
	if jobID == "" {
		return "", &SubmissionError{Tool: t.name, StatusCode: resp.StatusCode}
	}
	return jobID, nil
}

// Status returns the current status of a job. A 404 is PENDING: EBI registers jobs
// asynchronously and the status endpoint can lag behind submission.
func (t *Tool) Status(ctx context.Context, jobID string) (Status, error) {
	endpoint := t.baseURL + "/status/" + url.PathEscape(jobID)
	resp, err := fetch.Do(ctx, t.client, fetch.Get(endpoint), &t.status)
	if err != nil {
		return "", fmt.Errorf("%s status: %w", t.name, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return StatusPending, nil
	}
	if !resp.OK() {
		return "", &StatusError{Tool: t.name, JobID: jobID, StatusCode: resp.StatusCode, Body: truncate(resp.Text())}
	}
	return ParseStatus(resp.Text()), nil
}

// Result fetches a result document of a finished job. A blank body is an error,
// never a valid empty artifact.
func (t *Tool) Result(ctx context.Context, jobID, resultType string) (string, error) {
	endpoint := t.baseURL + "/result/" + url.PathEscape(jobID) + "/" + url.PathEscape(resultType)
	resp, err := fetch.Do(ctx, t.client, fetch.Get(endpoint), &t.result)
	if err != nil {
		return "", fmt.Errorf("%s result: %w", t.name, err)
	}

	text := resp.Text()
	if !resp.OK() {
		return "", &ResultError{Tool: t.name, JobID: jobID, ResultType: resultType, StatusCode: resp.StatusCode, Body: truncate(text)}
	}
	if text == "" {
		return "", &ResultError{Tool: t.name, JobID: jobID, ResultType: resultType, StatusCode: resp.StatusCode}
	}
	return text, nil
}
