// Package fetch performs HTTP requests with a per-attempt timeout and bounded retry.
// Every upstream call in the service (EBI job tools, RCSB, AlphaFold) goes through Do.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// DefaultTimeout is the default per-attempt request timeout.
const DefaultTimeout = 15 * time.Second

// DefaultRetries is the default number of additional attempts after the first.
const DefaultRetries = 2

// DefaultRetryDelay is the base delay of the linear backoff.
const DefaultRetryDelay = 500 * time.Millisecond

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "bioview/1.0 (+https://github.com/jonathan/bioview)"

// ErrRetriesExhausted is returned if the attempt loop ends without a response or error.
// Reaching it means the loop invariant was broken.
var ErrRetriesExhausted = errors.New("fetch: retries exhausted")

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	// KindTimeout is a local per-attempt timeout.
	KindTimeout ErrorKind = "timeout"
	// KindNetwork is a connection-level failure (refused, reset, DNS, truncated body).
	KindNetwork ErrorKind = "network"
	// KindCanceled means the caller's context ended.
	KindCanceled ErrorKind = "canceled"
	// KindRequest means the request itself could not be built or sent.
	KindRequest ErrorKind = "request"
)

// Error represents a transport failure during a fetch. HTTP error statuses are not
// errors; they come back as a Response.
type Error struct {
	URL      string
	Kind     ErrorKind
	Message  string
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s (%s after %d attempt(s)): %v", e.URL, e.Message, e.Kind, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s (%s after %d attempt(s))", e.URL, e.Message, e.Kind, e.Attempts)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindNetwork
}

// Request describes one HTTP call. Body is buffered so it can be re-sent on retry.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Get builds a GET request.
func Get(urlStr string) *Request {
	return &Request{Method: http.MethodGet, URL: urlStr, Header: http.Header{}}
}

// PostForm builds a form-encoded POST request.
func PostForm(urlStr string, values url.Values) *Request {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return &Request{
		Method: http.MethodPost,
		URL:    urlStr,
		Header: h,
		Body:   []byte(values.Encode()),
	}
}

// Response holds a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body with surrounding whitespace removed.
func (r *Response) Text() string {
	return strings.TrimSpace(string(r.Body))
}

// RetryOptions configures timeout and retry behavior. A nil *RetryOptions means
// DefaultRetryOptions.
type RetryOptions struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	UserAgent  string
}

// DefaultRetryOptions returns sensible defaults for upstream calls.
func DefaultRetryOptions() *RetryOptions {
	return &RetryOptions{
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
		UserAgent:  DefaultUserAgent,
	}
}

func (o RetryOptions) normalized() RetryOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// RetryableStatus reports whether an HTTP status is worth another attempt.
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// Do executes req, retrying retryable failures with linear backoff
// (RetryDelay * attempt number). A retryable status on the final attempt is
// returned as-is; callers inspect Response.OK.
func Do(ctx context.Context, client *http.Client, req *Request, opts *RetryOptions) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if opts == nil {
		opts = DefaultRetryOptions()
	}
	o := opts.normalized()

	for attempt := 0; attempt <= o.Retries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, o.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, &Error{URL: req.URL, Kind: KindCanceled, Message: "canceled during backoff", Attempts: attempt, Cause: err}
			}
		}

		resp, err := doOnce(ctx, client, req, o)
		if err != nil {
			err.Attempts = attempt + 1
			if !err.Retryable() || attempt == o.Retries {
				return nil, err
			}
			log.Printf("[fetch] %s %s failed (%s), retrying (attempt %d/%d)", req.Method, req.URL, err.Kind, attempt+1, o.Retries+1)
			continue
		}

		resp.Attempts = attempt + 1
		if RetryableStatus(resp.StatusCode) && attempt < o.Retries {
			log.Printf("[fetch] %s %s returned %d, retrying (attempt %d/%d)", req.Method, req.URL, resp.StatusCode, attempt+1, o.Retries+1)
			continue
		}
		return resp, nil
	}

	return nil, ErrRetriesExhausted
}

// doOnce runs a single attempt under its own timeout. The timer is released on
// every return path by the deferred cancel.
func doOnce(ctx context.Context, client *http.Client, req *Request, o RetryOptions) (*Response, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, &Error{URL: req.URL, Kind: KindRequest, Message: "failed to create request", Cause: err}
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", o.UserAgent)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, req.URL, "HTTP request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, req.URL, "failed to read response body", err)
	}

	return &Response{
		URL:        req.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       bodyBytes,
	}, nil
}

// classify maps a transport error onto an ErrorKind. The parent context is
// checked first so caller cancellation is never mistaken for a timeout.
func classify(parent context.Context, urlStr, message string, err error) *Error {
	fe := &Error{URL: urlStr, Message: message, Cause: err}

	switch {
	case parent.Err() != nil:
		fe.Kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		fe.Kind = KindTimeout
	case isNetworkError(err):
		fe.Kind = KindNetwork
	default:
		fe.Kind = KindRequest
	}
	return fe
}

func isNetworkError(err error) bool {
	inner := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		inner = urlErr.Err
	}

	var netErr net.Error
	if errors.As(inner, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(inner, &opErr) {
		return true
	}
	return errors.Is(inner, io.EOF) ||
		errors.Is(inner, io.ErrUnexpectedEOF) ||
		errors.Is(inner, syscall.ECONNREFUSED) ||
		errors.Is(inner, syscall.ECONNRESET) ||
		errors.Is(inner, syscall.EPIPE)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
