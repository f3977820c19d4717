package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	DefaultOrigin  = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second

	requestIDHeader = "X-Request-ID"
)

// Client talks to the restaurant backend REST API.
type Client struct {
	base    *url.URL
	http    *http.Client
	tokens  oauth2.TokenSource
	timeout time.Duration
	logger  apt.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

func WithLogger(logger apt.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a client for origin. Every path is resolved under
// <origin>/api/.
func NewClient(origin string, opts ...Option) (*Client, error) {
	if origin == "" {
		origin = DefaultOrigin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse api origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api origin %q must be http or https", origin)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/"
	u.RawQuery = ""

	c := &Client{
		base:    u,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  apt.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL is the resolved API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return fmt.Errorf("parse path %q: %w", path, err)
	}
	target := c.base.ResolveReference(ref)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	log := c.logger.With("method", method, "path", target.Path, "request_id", requestID)
	started := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(ctx, err)
	}
	log.Debug("api call finished", "status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp.StatusCode, resp.Status, raw)
		log.Info("api call failed", "status", resp.StatusCode, "error", apiErr.Message)
		return apiErr
	}

	if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "unexpected response from server", Err: err}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	tok, err := c.tokens.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		return
	}
	tok.SetAuthHeader(req)
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "the request is taking too long", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindNetwork, Message: "request cancelled", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: "cannot reach the server", Err: err}
}

// decodeError reads the backend error body. The backend answers with
// detail, error, message or a field keyed validation map; anything else
// falls back to the status line.
func decodeError(status int, statusLine string, raw []byte) *Error {
	apiErr := &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: statusLine,
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return apiErr
	}

	for _, key := range []string{"detail", "error", "message"} {
		if v, ok := body[key]; ok {
			var msg string
			if json.Unmarshal(v, &msg) == nil && msg != "" {
				apiErr.Message = msg
				return apiErr
			}
		}
	}

	fields := make(map[string][]string)
	for k, v := range body {
		var list []string
		if json.Unmarshal(v, &list) == nil && len(list) > 0 {
			fields[k] = list
			continue
		}
		var single string
		if json.Unmarshal(v, &single) == nil && single != "" {
			fields[k] = []string{single}
		}
	}
	if len(fields) > 0 {
		apiErr.Fields = fields
		apiErr.Message = flattenFields(fields)
	}
	return apiErr
}
