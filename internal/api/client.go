// Package api is the HTTP client for the game backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/balance/internal/model"
)

// UserHeader carries the user id on requests whose body has no room for it.
const UserHeader = "X-User-ID"

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBodyLen = 512
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the backend endpoints.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New returns a client for baseURL. A nil httpClient gets a default with a timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: u, http: httpClient}, nil
}

// HealthURL returns the URL polled for reachability.
func (c *Client) HealthURL() string {
	return c.resolve("/health")
}

// GetConfig fetches the game configuration.
func (c *Client) GetConfig(ctx context.Context) (model.GameConfig, error) {
	var cfg model.GameConfig
	err := c.do(ctx, http.MethodGet, "/game/config", nil, nil, &cfg)
	return cfg, err
}

// GetProblem fetches a new problem for the given level.
func (c *Client) GetProblem(ctx context.Context, level int) (model.Problem, error) {
	var p model.Problem
	path := "/game/problem"
	if level > 0 {
		path += "?level=" + strconv.Itoa(level)
	}
	err := c.do(ctx, http.MethodGet, path, nil, nil, &p)
	return p, err
}

// Submit sends an answer for server-side evaluation.
func (c *Client) Submit(ctx context.Context, req model.SubmitRequest) (model.SubmitResult, error) {
	var res model.SubmitResult
	err := c.do(ctx, http.MethodPost, "/game/submit", nil, req, &res)
	return res, err
}

// Sync pushes a local progress snapshot and returns the authoritative progress.
func (c *Client) Sync(ctx context.Context, userID string, p model.LocalProgress) (model.UserProgress, error) {
	var up model.UserProgress
	header := http.Header{}
	header.Set(UserHeader, userID)
	err := c.do(ctx, http.MethodPost, "/api/game/sync", header, p, &up)
	return up, err
}

// UserProgress fetches the authoritative progress of a user.
func (c *Client) UserProgress(ctx context.Context, userID string) (model.UserProgress, error) {
	var up model.UserProgress
	err := c.do(ctx, http.MethodGet, "/user/"+url.PathEscape(userID)+"/progress", nil, nil, &up)
	return up, err
}

func (c *Client) resolve(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
