package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.coze.cn"
	streamRunPath  = "/v1/workflow/stream_run"

	DefaultTimeout = 120 * time.Second

	// Bytes of a failed response body kept for the error message
	maxErrorBody = 1024
)

// ErrStreamFailure matches every transport level failure of an exchange.
var ErrStreamFailure = errors.New("workflow stream failed")

// StreamFailure is a non-success status or a connection/read error
type StreamFailure struct {
	StatusCode int    // 0 when no response was received
	Body       string // Truncated response body for non-success statuses
	Err        error
}

func (e *StreamFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("workflow request failed with status %d: %s", e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return "workflow stream failed: " + e.Err.Error()
	}
	return ErrStreamFailure.Error()
}

func (e *StreamFailure) Unwrap() error { return e.Err }

func (e *StreamFailure) Is(target error) bool { return target == ErrStreamFailure }

// Streamer runs one workflow exchange, delivering events in order.
type Streamer interface {
	Stream(ctx context.Context, req *RunRequest, fn func(Event) error) error
}

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	WorkflowID string        // Used when a request carries no workflow id
	Timeout    time.Duration // Whole-exchange timeout, including the streamed body
}

// Client calls the workflow stream_run endpoint
type Client struct {
	baseURL    string
	apiKey     string
	workflowID string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Streamer = (*Client)(nil)

// NewClient creates a workflow client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		workflowID: cfg.WorkflowID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Stream posts req and decodes the response body as it arrives.
func (c *Client) Stream(ctx context.Context, req *RunRequest, fn func(Event) error) error {
	if req == nil {
		return errors.New("run request is required")
	}

	body := *req
	if body.WorkflowID == "" {
		body.WorkflowID = c.workflowID
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamRunPath, bytes.NewBuffer(reqBody))
	if err != nil {
		return &StreamFailure{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("Starting workflow stream",
		"workflow_id", body.WorkflowID,
		"number", body.Parameters.Number,
		"history_bytes", len(body.Parameters.History))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &StreamFailure{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("Workflow request failed",
			"status", resp.StatusCode,
			"body", string(errBody))
		return &StreamFailure{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	return Decode(ctx, resp.Body, c.logger, fn)
}
