// Package backend is the HTTP client for the ledger service. It maps each
// endpoint to Go types and rejects payloads that do not match the expected
// shape; it does no caching and no retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "http://localhost:8000"

// ErrMalformed is wrapped by every error caused by a response that decoded
// but did not match the endpoint's schema
var ErrMalformed = errors.New("malformed response")

// ErrRejected is returned when the backend answers 2xx but reports the
// operation as failed
var ErrRejected = errors.New("rejected by backend")

// NetworkError is a request that did not complete or came back non-2xx
type NetworkError struct {
	Method string
	Path   string
	Status int // 0 when no response was received
	Body   string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, http.StatusText(e.Status), e.Body)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HasStatus reports whether err is a NetworkError with one of codes
func HasStatus(err error, codes ...int) bool {
	var ne *NetworkError
	if !errors.As(err, &ne) {
		return false
	}
	for _, c := range codes {
		if ne.Status == c {
			return true
		}
	}
	return false
}

type Client struct {
	http    *http.Client
	baseURL *url.URL
	logger  zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.baseURL = u
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(opts ...Option) (*Client, error) {
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: u,
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.baseURL.Scheme != "http" && c.baseURL.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL must be http(s), got %q", c.baseURL.String())
	}
	return c, nil
}

func (c *Client) newReq(ctx context.Context, method, p string, q url.Values, body any) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, p, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, p string, q url.Values, body, out any) error {
	req, err := c.newReq(ctx, method, p, q, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Method: method, Path: p, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug().
		Str("method", method).
		Str("path", p).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend call")

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: method, Path: p, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{
			Method: method,
			Path:   p,
			Status: resp.StatusCode,
			Body:   string(b),
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, p, ErrMalformed, err)
	}
	return nil
}
