package encapsia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Client provides REST API access to an Encapsia server.
//
// A Client is safe for concurrent use. It is immutable: the With* methods
// derive a copy with adjusted parameters, intended to be used as
//
//	found, err := api.WithRetries(1).DownloadBlob(ctx, id, w)
type Client struct {
	cfg    Config
	http   *http.Client
	logger hclog.Logger
}

// New creates a client for the given server and session token.
func New(cfg Config) (*Client, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	return &Client{
		cfg:    cfg,
		http:   cfg.NewHTTPClient(),
		logger: cfg.Logger.Named("encapsia-api"),
	}, nil
}

// URL returns the normalized server base URL.
func (c *Client) URL() string {
	return c.cfg.BaseURL
}

// Host returns the host part of the server URL, usually a FQDN.
func (c *Client) Host() string {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (c *Client) String() string {
	return c.cfg.BaseURL
}

// WithRetries returns a copy of the client with a new retry budget.
func (c *Client) WithRetries(n int) *Client {
	clone := *c
	clone.cfg.MaxRetries = n
	return &clone
}

// WithRetryDelay returns a copy of the client with new backoff bounds.
func (c *Client) WithRetryDelay(min, max time.Duration) *Client {
	clone := *c
	clone.cfg.MinRetryDelay = min
	clone.cfg.MaxRetryDelay = max
	return &clone
}

// WithToken returns a copy of the client authenticating with a new token,
// e.g. one freshly obtained from LoginAgain or LoginExtend.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.cfg.Token = token
	return &clone
}

// WithReadTimeout returns a copy of the client with a new read timeout.
func (c *Client) WithReadTimeout(d time.Duration) *Client {
	clone := *c
	clone.cfg.ReadTimeout = d
	clone.http = clone.cfg.NewHTTPClient()
	return &clone
}

// RetryHook observes retries of a single request. The cause is the error or
// unexpected-status failure of the attempt that just failed.
type RetryHook func(attempt int, cause error)

type requestOptions struct {
	params      url.Values
	headers     map[string]string
	jsonBody    any
	hasJSONBody bool
	body        io.Reader
	contentType string
	expected    []int
	idempotent  *bool
	onRetry     RetryHook
}

type callOption func(*requestOptions)

func withParams(params url.Values) callOption {
	return func(o *requestOptions) { o.params = params }
}

func withParam(key, value string) callOption {
	return func(o *requestOptions) {
		if o.params == nil {
			o.params = url.Values{}
		}
		o.params.Set(key, value)
	}
}

func withHeader(key, value string) callOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

func withJSON(v any) callOption {
	return func(o *requestOptions) {
		o.jsonBody = v
		o.hasJSONBody = true
	}
}

func withBody(r io.Reader, contentType string) callOption {
	return func(o *requestOptions) {
		o.body = r
		o.contentType = contentType
	}
}

func withExpected(codes ...int) callOption {
	return func(o *requestOptions) { o.expected = codes }
}

func withIdempotent(idempotent bool) callOption {
	return func(o *requestOptions) { o.idempotent = &idempotent }
}

func withOnRetry(hook RetryHook) callOption {
	return func(o *requestOptions) { o.onRetry = hook }
}

// endpoint joins the base URL, the API version, and the path segments.
// Dynamic segments must already be path-escaped by the caller.
func (c *Client) endpoint(segments ...string) string {
	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, c.cfg.BaseURL, c.cfg.Version)
	for _, s := range segments {
		parts = append(parts, strings.TrimLeft(s, "/"))
	}
	return strings.Join(parts, "/")
}

// call executes a request against the versioned API and enforces the
// expected status codes. The caller owns the returned response body.
func (c *Client) call(ctx context.Context, method string, segments []string, opts ...callOption) (*http.Response, error) {
	options := requestOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return c.request(ctx, method, c.endpoint(segments...), options)
}

func (c *Client) request(ctx context.Context, method, endpoint string, options requestOptions) (*http.Response, error) {
	if len(options.params) > 0 {
		endpoint += "?" + options.params.Encode()
	}

	resp, err := c.doResilient(ctx, method, endpoint, &options)
	if err != nil {
		return nil, err
	}

	expected := options.expected
	if expected == nil {
		expected = []int{http.StatusOK, http.StatusCreated}
	}
	if !slices.Contains(expected, resp.StatusCode) {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}

	return resp, nil
}

// readAPIError drains (a bounded amount of) the response body into an APIError.
func readAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Body:       strings.TrimSpace(string(body)),
	}
}

// envelope is the standard JSON reply shape of every v1 endpoint.
type envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// result performs a request expecting the standard JSON envelope, checks the
// embedded status, and decodes the result into out when out is non-nil.
func (c *Client) result(ctx context.Context, method string, segments []string, out any, opts ...callOption) error {
	resp, err := c.call(ctx, method, segments, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResult(resp, out)
}

func decodeResult(resp *http.Response, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Status != "ok" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, segments []string, out any, opts ...callOption) error {
	return c.result(ctx, http.MethodGet, segments, out, opts...)
}

func (c *Client) post(ctx context.Context, segments []string, body, out any, opts ...callOption) error {
	if body != nil {
		opts = append(opts, withJSON(body))
	}
	return c.result(ctx, http.MethodPost, segments, out, opts...)
}

func (c *Client) put(ctx context.Context, segments []string, body, out any, opts ...callOption) error {
	if body != nil {
		opts = append(opts, withJSON(body))
	}
	return c.result(ctx, http.MethodPut, segments, out, opts...)
}

func (c *Client) delete(ctx context.Context, segments []string, out any, opts ...callOption) error {
	return c.result(ctx, http.MethodDelete, segments, out, opts...)
}
