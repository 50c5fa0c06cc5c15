package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/me/ingestd/pkg/model"
)

// Client is an HTTP client for the ingestd API.
type Client struct {
	BaseURL string
	Logger  *slog.Logger

	http *resty.Client
}

// NewClient creates an ingestd API client. Connection errors are retried;
// HTTP error responses are not.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "ingestctl/"+version).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			return err != nil
		})

	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug("HTTP request", "method", req.Method, "url", req.URL)
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP response", "status", resp.StatusCode(), "took", resp.Time(), "body", resp.String())
		return nil
	})
	rc.OnError(func(req *resty.Request, err error) {
		logger.Debug("HTTP request failed", "method", req.Method, "url", req.URL, "error", err)
	})

	return &Client{BaseURL: baseURL, Logger: logger, http: rc}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// do performs an HTTP request and returns the parsed envelope.
func (c *Client) do(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	var env apiResponse
	req := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, c.BaseURL+path, err)
	}
	if env.Status == "" {
		return nil, fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode(), resp.String())
	}
	if env.Status == "error" && env.Error != nil {
		return &env, env.Error
	}
	return &env, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*apiResponse, error) {
	return c.do(ctx, resty.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*apiResponse, error) {
	return c.do(ctx, resty.MethodPost, path, body)
}

// Submission fetches one submission.
func (c *Client) Submission(ctx context.Context, id string) (*model.Submission, error) {
	resp, err := c.Get(ctx, "/api/v1/submissions/"+id)
	if err != nil {
		return nil, err
	}
	var sub model.Submission
	if err := json.Unmarshal(resp.Data, &sub); err != nil {
		return nil, fmt.Errorf("parse submission: %w", err)
	}
	return &sub, nil
}
