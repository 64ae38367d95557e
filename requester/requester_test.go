package requester

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outcode-retriever/utils"
)

func quiet() *utils.Logger { return utils.NewLoggerWithOptions(io.Discard, "error", "text") }

func TestGetSendsDefaultHeadersAndParams(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	limiter := NewLimiter(Limits{}, nil)
	r := New(Options{
		UserAgent:   "test-agent/1.0",
		RequestFrom: "ops@example.com",
		Limiter:     limiter,
		Transport:   srv.Client(),
		Logger:      quiet(),
	})

	resp, err := r.Get(context.Background(), srv.URL+"/find.html", url.Values{"locationIdentifier": {"OUTCODE^5"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "short and stout", string(resp.Body))
	assert.Equal(t, "test-agent/1.0", got.Header.Get("User-Agent"))
	assert.Equal(t, "ops@example.com", got.Header.Get("From"))
	assert.Equal(t, "OUTCODE^5", got.URL.Query().Get("locationIdentifier"))
	assert.Equal(t, 1, limiter.TotalCalls())
}

func TestCallerHeadersWinOnlyWhenSet(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	r := New(Options{UserAgent: "default-agent", Transport: srv.Client(), Logger: quiet()})

	_, err := r.Get(context.Background(), srv.URL, nil, http.Header{"user-agent": {"override"}, "X-Extra": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, "override", got.Get("User-Agent"))
	assert.Equal(t, "1", got.Get("X-Extra"))
	assert.Empty(t, got.Get("From"), "From is only sent when configured")

	_, err = r.Get(context.Background(), srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "default-agent", got.Get("User-Agent"))
}

func TestPostUsesLimiter(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	limiter := NewLimiter(Limits{PerSecond: intp(100)}, nil)
	r := New(Options{UserAgent: "ua", Limiter: limiter, Transport: srv.Client(), Logger: quiet()})

	_, err := r.Post(context.Background(), srv.URL, "application/json", strings.NewReader(`{"a":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, body)
	assert.Equal(t, 1, limiter.TotalCalls())
}

type failingTransport struct{}

func (failingTransport) Do(*http.Request) (*http.Response, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestTransportErrorStillCountsCall(t *testing.T) {
	limiter := NewLimiter(Limits{PerHour: intp(10)}, nil)
	r := New(Options{UserAgent: "ua", Limiter: limiter, Transport: failingTransport{}, Logger: quiet()})

	_, err := r.Get(context.Background(), "http://example.invalid/x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 1, limiter.TotalCalls())
}

func TestSharedLimiterAcrossRequesters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	shared := NewLimiter(Limits{}, nil)
	a := New(Options{UserAgent: "a", Limiter: shared, Transport: srv.Client(), Logger: quiet()})
	b := New(Options{UserAgent: "b", Limiter: shared, Transport: srv.Client(), Logger: quiet()})

	for i := 0; i < 3; i++ {
		_, err := a.Get(context.Background(), srv.URL, nil, nil)
		require.NoError(t, err)
		_, err = b.Get(context.Background(), srv.URL, nil, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 6, shared.TotalCalls())
	assert.Same(t, a.Limiter(), b.Limiter())
}

type okTransport struct{}

func (okTransport) Do(*http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
}

func TestConcurrentGetsStayWithinBudget(t *testing.T) {
	limiter, clock := newTestLimiter(Limits{PerSecond: intp(2)})
	r := New(Options{UserAgent: "ua", Limiter: limiter, Transport: okTransport{}, Logger: quiet()})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Get(context.Background(), "http://example.invalid/find.html", nil, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, limiter.TotalCalls())
	assert.Len(t, clock.slept, 1, "the third call waits for the next window")
}
