package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(retries int) *RetryOptions {
	return &RetryOptions{
		Timeout:    time.Second,
		Retries:    retries,
		RetryDelay: time.Millisecond,
	}
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("  FINISHED\n"))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Get(server.URL), fastRetry(2))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "FINISHED", resp.Text())
	assert.Equal(t, 1, resp.Attempts)
}

func TestDo_RetriesServiceUnavailableThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Get(server.URL), fastRetry(2))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Get(server.URL), fastRetry(3))
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_RetryableStatusReturnedAfterBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Get(server.URL), fastRetry(2))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_TimeoutIsRetriedThenReported(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	opts := &RetryOptions{Timeout: 30 * time.Millisecond, Retries: 1, RetryDelay: time.Millisecond}
	_, err := Do(context.Background(), server.Client(), Get(server.URL), opts)
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTimeout, fetchErr.Kind)
	assert.Equal(t, 2, fetchErr.Attempts)
	assert.True(t, fetchErr.Retryable())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	deadURL := server.URL
	server.Close()

	_, err := Do(context.Background(), nil, Get(deadURL), fastRetry(1))
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindNetwork, fetchErr.Kind)
	assert.Equal(t, 2, fetchErr.Attempts)
}

func TestDo_CallerCancellationIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Do(ctx, server.Client(), Get(server.URL), fastRetry(3))
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindCanceled, fetchErr.Kind)
	assert.False(t, fetchErr.Retryable())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_InvalidURL(t *testing.T) {
	_, err := Do(context.Background(), nil, Get("::not a url"), fastRetry(2))
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindRequest, fetchErr.Kind)
	assert.Contains(t, err.Error(), "failed to create request")
}

func TestDo_PostFormBodyResentOnRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		values, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		assert.Equal(t, ">seq1\nMKT", values.Get("sequence"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("job-1"))
	}))
	defer server.Close()

	req := PostForm(server.URL, url.Values{"sequence": {">seq1\nMKT"}})
	resp, err := Do(context.Background(), server.Client(), req, fastRetry(1))
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.Text())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		code     int
		expected bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RetryableStatus(tt.code), "status %d", tt.code)
	}
}

func TestRetryOptions_Normalized(t *testing.T) {
	o := RetryOptions{Retries: -3, RetryDelay: -time.Second}.normalized()
	assert.Equal(t, DefaultTimeout, o.Timeout)
	assert.Equal(t, 0, o.Retries)
	assert.Equal(t, time.Duration(0), o.RetryDelay)
	assert.Equal(t, DefaultUserAgent, o.UserAgent)
}

func TestError_Message(t *testing.T) {
	err := &Error{URL: "https://example.org", Kind: KindNetwork, Message: "HTTP request failed", Attempts: 3, Cause: io.ErrUnexpectedEOF}
	assert.Contains(t, err.Error(), "https://example.org")
	assert.Contains(t, err.Error(), "network after 3 attempt(s)")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
