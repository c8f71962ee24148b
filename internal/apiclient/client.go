// Package apiclient is the thin HTTP transport shared by the session, store,
// image and compute layers. It attaches bearer tokens, encodes bodies,
// maps non-2xx responses to *errs.HTTPError and records metrics.
package apiclient

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

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/metrics"
)

// Doer is the HTTP-like request capability the client needs. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource yields the bearer token of the current session ("" when logged out).
type TokenSource interface {
	CurrentToken() string
}

// maxErrorBody bounds how much of an error response is kept as message.
const maxErrorBody = 4 << 10

// Client performs API calls against a single base URL.
type Client struct {
	base   string
	http   Doer
	tokens TokenSource
	log    *zap.Logger
	ngrok  bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New constructs a client for baseURL (scheme and host required).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("api url %q: want http(s)://host", baseURL)
	}
	c := &Client{
		base:  strings.TrimRight(u.String(), "/"),
		http:  http.DefaultClient,
		log:   zap.NewNop(),
		ngrok: strings.Contains(u.Hostname(), "ngrok"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// WithTokens returns a copy of c that authenticates requests with ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.base }

// Request describes a single API call.
type Request struct {
	Op     string // label for logs and metrics, e.g. "patients.list"
	Method string
	Path   string // relative to the base URL, leading slash included

	// Auth attaches the token of the configured TokenSource.
	Auth bool
	// Bearer, when set, is attached instead of the TokenSource token.
	Bearer string

	JSON      any        // encoded as application/json
	Form      url.Values // encoded as application/x-www-form-urlencoded
	Multipart *Multipart
}

// Do performs req and decodes a JSON response body into out (when non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	hreq, err := c.build(ctx, req)
	if err != nil {
		return err
	}
	rid := hreq.Header.Get("X-Request-ID")

	start := time.Now()
	resp, err := c.http.Do(hreq)
	dur := time.Since(start)
	metrics.APIRequestDuration.WithLabelValues(req.Op).Observe(dur.Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(req.Op, "error").Inc()
		c.log.Warn("api transport error",
			zap.String("op", req.Op),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("request_id", rid),
			zap.Duration("dur", dur),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(req.Op, metrics.StatusClass(resp.StatusCode)).Inc()
	// metadata only, never payloads
	c.log.Debug("api",
		zap.String("op", req.Op),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", rid),
		zap.Duration("dur", dur),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.Op, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Op, err)
	}
	return nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", req.Op, err)
		}
		body, contentType = bytes.NewReader(b), "application/json"
	case req.Form != nil:
		body, contentType = strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded"
	case req.Multipart != nil:
		b, ct, err := req.Multipart.encode()
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", req.Op, err)
		}
		body, contentType = bytes.NewReader(b), ct
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, c.base+req.Path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	hreq.Header.Set("Accept", "application/json")
	if c.ngrok {
		hreq.Header.Set("ngrok-skip-browser-warning", "1")
	}
	if id, err := uuid.NewV4(); err == nil {
		hreq.Header.Set("X-Request-ID", id.String())
	}

	token := req.Bearer
	if token == "" && req.Auth {
		if c.tokens != nil {
			token = c.tokens.CurrentToken()
		}
		if token == "" {
			return nil, errs.ErrNotLoggedIn
		}
	}
	if token != "" {
		hreq.Header.Set("Authorization", "Bearer "+token)
	}
	return hreq, nil
}

// decodeError builds an *errs.HTTPError, preferring the JSON message or detail field.
func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	he := &errs.HTTPError{Status: resp.StatusCode}

	var payload struct {
		Message json.RawMessage `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(b, &payload) == nil {
		for _, raw := range []json.RawMessage{payload.Message, payload.Detail} {
			var s string
			if len(raw) > 0 && json.Unmarshal(raw, &s) == nil && s != "" {
				he.Message = s
				return he
			}
		}
	}
	if msg := strings.TrimSpace(string(b)); msg != "" && !strings.HasPrefix(msg, "{") && !strings.HasPrefix(msg, "<") {
		he.Message = msg
	}
	return he
}

// IsTransport reports whether err happened before a response was received.
func IsTransport(err error) bool {
	var he *errs.HTTPError
	return err != nil && !errors.As(err, &he)
}
