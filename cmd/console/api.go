package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/fateweaver/internal/handlers"
	"github.com/jwebster45206/fateweaver/pkg/engine"
)

// apiClient talks to the playthrough API. Streaming actions use a client
// without a timeout since an exchange lasts as long as the workflow does.
type apiClient struct {
	client       *http.Client
	streamClient *http.Client
	baseURL      string
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func (a *apiClient) createPlaythrough() (*handlers.PlaythroughResponse, error) {
	resp, err := a.client.Post(a.baseURL+"/v1/playthroughs", "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return decodePlaythrough(resp, http.StatusCreated)
}

func (a *apiClient) getPlaythrough(id uuid.UUID) (*handlers.PlaythroughResponse, error) {
	resp, err := a.client.Get(fmt.Sprintf("%s/v1/playthroughs/%s", a.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return decodePlaythrough(resp, http.StatusOK)
}

func decodePlaythrough(resp *http.Response, want int) (*handlers.PlaythroughResponse, error) {
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return nil, apiError(resp.StatusCode, body)
	}

	var p handlers.PlaythroughResponse
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse playthrough response: %w", err)
	}
	return &p, nil
}

// statusError carries the HTTP status of a rejected action
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Message)
}

func apiError(status int, body []byte) error {
	var errorResp handlers.ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
		return &statusError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	return &statusError{Status: status, Message: errorResp.Error}
}

// streamAction posts an action and calls onCommand for every render command
// the server sends. It returns the state from the closing done event.
func (a *apiClient) streamAction(ctx context.Context, id uuid.UUID, action string, body any, onCommand func(engine.Command)) (*engine.State, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/v1/playthroughs/%s/%s", a.baseURL, id, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, data)
	}

	return readEvents(resp.Body, onCommand)
}

// readEvents parses the event stream of one action.
func readEvents(r io.Reader, onCommand func(engine.Command)) (*engine.State, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType, data string
	for scanner.Scan() {
		line := scanner.Text()

		if line != "" {
			if strings.HasPrefix(line, "event: ") {
				eventType = strings.TrimPrefix(line, "event: ")
			} else if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
			}
			continue
		}

		// Empty line signals end of event
		if eventType == handlers.EventDone {
			var done handlers.PlaythroughResponse
			if err := json.Unmarshal([]byte(data), &done); err != nil {
				return nil, fmt.Errorf("failed to parse done event: %w", err)
			}
			return &done.State, nil
		}
		if eventType != "" {
			var cmd engine.Command
			if err := json.Unmarshal([]byte(data), &cmd); err == nil {
				onCommand(cmd)
			}
		}
		eventType, data = "", ""
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading event stream: %w", err)
	}
	return nil, fmt.Errorf("event stream closed before the action finished")
}
