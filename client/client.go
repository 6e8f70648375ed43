// Package client talks to the taskflow API over HTTP.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"taskflow/domain"
)

const maxErrorBody = 4 << 10

// RemoteError is a non-success response from the service. Message carries
// the response body text.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client wraps http.Client with the task routes of the API.
type Client struct {
	BaseURL string
	Session *TokenSession
	HTTP    *http.Client
}

// New creates a new Client.
func New(baseURL string, session *TokenSession) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Session: session,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

// List returns all of the caller's tasks, newest first.
func (c *Client) List(ctx context.Context) ([]domain.Task, error) {
	return c.Search(ctx, domain.Filter{})
}

// Search returns the caller's tasks matching f, filtered by the server.
func (c *Client) Search(ctx context.Context, f domain.Filter) ([]domain.Task, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp tasksResponse
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// Stats returns per-status counts computed by the server.
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	err := c.do(ctx, http.MethodGet, "/api/tasks/stats", nil, nil, &stats)
	return stats, err
}

// Create inserts a task. Each call carries a fresh idempotency key.
func (c *Client) Create(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	var task domain.Task
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	err := c.do(ctx, http.MethodPost, "/api/tasks", draft, headers, &task)
	return task, err
}

func (c *Client) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), patch, nil, &task)
	return task, err
}

// Advance asks the server to move the task along the status cycle.
func (c *Client) Advance(ctx context.Context, id string) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/advance", nil, nil, &task)
	return task, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(err, "encode request")
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return pkgerrors.WithStack(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Session != nil {
		if token := c.Session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return pkgerrors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(err, "read response")
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return pkgerrors.Wrap(err, "decode response")
	}
	return nil
}
