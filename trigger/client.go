// Package trigger is a task.Backend over the REST API of a hosted
// trigger-style job service.
package trigger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/task"
)

// DefaultBaseURL is the hosted service endpoint.
const DefaultBaseURL = "https://api.trigger.dev"

// maxErrorBody caps how much of a failed response is kept in APIError.
const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from the service.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trigger: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client implements task.Backend.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a self-hosted instance.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client with a 30s timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a Client authenticating with secretKey.
func New(secretKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type triggerRequest struct {
	Payload any `json:"payload"`
}

type triggerResponse struct {
	ID string `json:"id"`
}

// Submit triggers taskID with payload.
func (c *Client) Submit(ctx context.Context, taskID string, payload any) (task.Handle, error) {
	body, err := xjson.Marshal(triggerRequest{Payload: payload})
	if err != nil {
		return task.Handle{}, fmt.Errorf("trigger: encode payload: %w", err)
	}
	var out triggerResponse
	path := "/api/v1/tasks/" + url.PathEscape(taskID) + "/trigger"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return task.Handle{}, err
	}
	if out.ID == "" {
		return task.Handle{}, fmt.Errorf("trigger: %s: response carries no run id", path)
	}
	c.logger.Debug("task triggered", "task_id", taskID, "handle", out.ID)
	return task.Handle{ID: out.ID, TaskID: taskID}, nil
}

// Retrieve fetches the current state of a run.
func (c *Client) Retrieve(ctx context.Context, h task.Handle) (task.Run, error) {
	var run task.Run
	if err := c.do(ctx, http.MethodGet, "/api/v3/runs/"+url.PathEscape(h.ID), nil, &run); err != nil {
		return task.Run{}, err
	}
	if run.ID == "" {
		run.ID = h.ID
	}
	return run, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("trigger: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("trigger: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("trigger: read %s: %w", path, err)
	}
	if err := xjson.Unmarshal(b, out); err != nil {
		return fmt.Errorf("trigger: decode %s: %w", path, err)
	}
	return nil
}
