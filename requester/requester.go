// Package requester issues outbound HTTP calls against one shared rate
// budget. Build one Requester at process start and pass it to every
// component that talks to the network.
package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"outcode-retriever/utils"
)

// Transport performs a single HTTP exchange. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string
}

// Options configures a Requester.
type Options struct {
	UserAgent   string
	RequestFrom string
	Limiter     *Limiter
	Transport   Transport
	Logger      *utils.Logger
}

// Requester wraps GET and POST with default identifying headers and the
// shared Limiter.
type Requester struct {
	userAgent   string
	requestFrom string
	headers     http.Header
	limiter     *Limiter
	transport   Transport
	logger      *utils.Logger
}

// New creates a Requester. A nil Limiter means no limits; a nil Transport
// uses http.DefaultClient.
func New(opts Options) *Requester {
	headers := http.Header{}
	headers.Set("User-Agent", opts.UserAgent)
	if opts.RequestFrom != "" {
		headers.Set("From", opts.RequestFrom)
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewLimiter(Limits{}, opts.Logger)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger()
	}

	return &Requester{
		userAgent:   opts.UserAgent,
		requestFrom: opts.RequestFrom,
		headers:     headers,
		limiter:     limiter,
		transport:   transport,
		logger:      logger,
	}
}

func (r *Requester) UserAgent() string   { return r.userAgent }
func (r *Requester) RequestFrom() string { return r.requestFrom }
func (r *Requester) Limiter() *Limiter   { return r.limiter }

// Get issues a GET with params encoded into the query string.
func (r *Requester) Get(ctx context.Context, rawURL string, params url.Values, headers http.Header) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("requester: parse url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("requester: build GET: %w", err)
	}
	return r.do(req, headers)
}

// Post issues a POST with the given body.
func (r *Requester) Post(ctx context.Context, rawURL, contentType string, body io.Reader, headers http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("requester: build POST: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return r.do(req, headers)
}

func (r *Requester) do(req *http.Request, headers http.Header) (*Response, error) {
	for k, vs := range r.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range headers {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	// The slot is reserved before the call so parallel workers share one budget.
	r.limiter.Acquire()
	resp, err := r.transport.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requester: %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("requester: read body of %s: %w", req.URL.Redacted(), err)
	}

	r.logger.Debug("[requester] %s %s -> %d (%d bytes)",
		req.Method, req.URL.Redacted(), resp.StatusCode, len(body))

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        req.URL.String(),
	}, nil
}

// headerValue is a small helper used by transports that cannot take an
// http.Header directly.
func headerValue(h http.Header, key string) string {
	return strings.Join(h.Values(key), ", ")
}
