// Package client is a Go client for the Project Aether HTTP API. It
// submits audit jobs, polls their status, streams live progress over
// WebSocket, and administers the lookup cache.
//
// Usage:
//
//	c := client.New("http://localhost:8000")
//
//	sub, err := c.SubmitAudit(ctx, audit.CrawlSpec{
//	    RootURL:  "https://example.com",
//	    MaxDepth: 2,
//	    MaxPages: 100,
//	})
//
//	events, err := c.Watch(ctx, sub.JobID)
//	for evt := range events {
//	    fmt.Println(evt.Type)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	aether "github.com/nmang004/projectaether"
)

// Client talks to an aetherd instance over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the API at baseURL, e.g.
// "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Health checks the server's /healthz endpoint. A degraded store reads
// as an error.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// ── transport plumbing ──────────────────────────────────────────────────

// errorBody mirrors the API's error envelope.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs one request. in (if non-nil) is sent as a JSON body; out
// (if non-nil) receives the decoded response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("aether/client: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("aether/client: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return aether.Transientf("request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return aether.Serializationf("decode %s %s response: %v", method, path, err)
	}
	return nil
}

// decodeError turns a non-2xx response into the matching sentinel or a
// structured error carrying the server's kind and message.
func decodeError(resp *http.Response) error {
	var eb errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // body is best-effort detail
	_ = json.Unmarshal(data, &eb)

	if resp.StatusCode == http.StatusNotFound {
		return aether.ErrJobNotFound
	}

	kind := aether.Kind(eb.Error.Kind)
	if kind == "" {
		if resp.StatusCode >= 500 {
			kind = aether.KindTransient
		} else {
			kind = aether.KindPermanent
		}
	}
	msg := eb.Error.Message
	if msg == "" {
		msg = resp.Status
	}
	return &aether.Error{Kind: kind, Code: fmt.Sprint(resp.StatusCode), Message: msg}
}
