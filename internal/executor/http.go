package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPExecutor posts each item to a remote endpoint. A 2xx response is a
// success whose body becomes the payload; anything else is a failure.
type HTTPExecutor struct {
	client *resty.Client
	url    string
	logger *slog.Logger
}

type itemRequest struct {
	ID int `json:"id"`
}

// NewHTTPExecutor creates an HTTPExecutor targeting url. Retries stay
// disabled: the dispatcher records exactly one attempt per item.
func NewHTTPExecutor(url string, timeout time.Duration, logger *slog.Logger) *HTTPExecutor {
	logger = logger.With("component", "http-executor")
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "ingestd").
		SetRetryCount(0)

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("item response", "status", resp.StatusCode(), "took", resp.Time())
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		logger.Debug("item request failed", "url", req.URL, "error", err)
	})

	return &HTTPExecutor{client: client, url: url, logger: logger}
}

// Type returns "http".
func (h *HTTPExecutor) Type() string { return "http" }

// Execute posts {"id": itemID} to the configured URL.
func (h *HTTPExecutor) Execute(ctx context.Context, itemID int) (string, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(itemRequest{ID: itemID}).
		Post(h.url)
	if err != nil {
		return "", fmt.Errorf("item %d: %w", itemID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("item %d: remote returned %s", itemID, resp.Status())
	}
	return resp.String(), nil
}
