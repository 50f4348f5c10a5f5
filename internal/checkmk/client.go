// Package checkmk talks to the Checkmk REST API and its JSON view exports.
package checkmk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Response is the part of a Checkmk response the application uses.
type Response struct {
	StatusCode int
	Body       []byte
	ETag       string
}

// Requester issues authenticated requests against Checkmk.
// Non-2xx responses are returned as *StatusError.
type Requester interface {
	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string, payload any) (*Response, error)
	Put(ctx context.Context, url string, payload any, etag string) (*Response, error)
	Delete(ctx context.Context, url, etag string) (*Response, error)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Options configures a RestClient.
type Options struct {
	Username string
	Password string
	Timeout  time.Duration
	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// RestClient is the Requester backed by the real Checkmk API.
type RestClient struct {
	client *resty.Client
}

// Ensure RestClient implements Requester.
var _ Requester = (*RestClient)(nil)

// NewRestClient creates a client that authenticates with HTTP basic auth.
func NewRestClient(opts Options) *RestClient {
	var c *resty.Client
	if opts.HTTPClient != nil {
		c = resty.NewWithClient(opts.HTTPClient)
	} else {
		c = resty.New()
	}
	c.SetBasicAuth(opts.Username, opts.Password).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}
	return &RestClient{client: c}
}

// Get fetches url. The ETag header is returned for later conditional writes.
func (c *RestClient) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(c.client.R().SetContext(ctx), http.MethodGet, url)
}

// Post sends payload as JSON. Checkmk requires If-Match on some actions, so
// the wildcard is always sent.
func (c *RestClient) Post(ctx context.Context, url string, payload any) (*Response, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("If-Match", "*").
		SetBody(payload)
	return c.do(req, http.MethodPost, url)
}

// Put sends payload guarded by etag.
func (c *RestClient) Put(ctx context.Context, url string, payload any, etag string) (*Response, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("If-Match", etag).
		SetBody(payload)
	return c.do(req, http.MethodPut, url)
}

// Delete removes the object at url, guarded by etag.
func (c *RestClient) Delete(ctx context.Context, url, etag string) (*Response, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("If-Match", etag)
	return c.do(req, http.MethodDelete, url)
}

func (c *RestClient) do(req *resty.Request, method, url string) (*Response, error) {
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		ETag:       resp.Header().Get("ETag"),
	}
	if !resp.IsSuccess() {
		return out, &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode(),
			Body:       truncate(string(resp.Body()), 512),
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
