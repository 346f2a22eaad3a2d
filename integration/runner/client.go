package runner

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

// ActionResponse is what one action produced
type ActionResponse struct {
	Status   int
	Commands []engine.Command
	State    *engine.State // Nil unless the stream closed with a done event
	Error    string        // Error body of a rejected action
}

// CreatePlaythrough starts a new playthrough and returns it with its opening commands
func CreatePlaythrough(ctx context.Context, client *http.Client, baseURL string) (*handlers.PlaythroughResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/playthroughs", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}
	return doPlaythrough(client, req, http.StatusCreated)
}

// GetPlaythrough loads a playthrough and the commands that redraw it
func GetPlaythrough(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID) (*handlers.PlaythroughResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/playthroughs/%s", baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	return doPlaythrough(client, req, http.StatusOK)
}

// DeletePlaythrough removes a playthrough; a missing one is not an error
func DeletePlaythrough(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/v1/playthroughs/%s", baseURL, id), nil)
	if err != nil {
		return fmt.Errorf("failed to create DELETE request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete playthrough: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func doPlaythrough(client *http.Client, req *http.Request, want int) (*handlers.PlaythroughResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s returned %d (expected %d): %s", req.Method, req.URL.Path, resp.StatusCode, want, string(body))
	}

	var p handlers.PlaythroughResponse
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode playthrough: %w", err)
	}
	return &p, nil
}

// PostAction runs one action and collects its event stream
func PostAction(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID, action string, body any) (*ActionResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", action, err)
		}
		reader = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/v1/playthroughs/%s/%s", baseURL, id, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	out := &ActionResponse{Status: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(data, &errorResp); err == nil && errorResp.Error != "" {
			out.Error = errorResp.Error
		} else {
			out.Error = strings.TrimSpace(string(data))
		}
		return out, nil
	}

	if err := readStream(resp.Body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// readStream fills out from an action's event stream
func readStream(r io.Reader, out *ActionResponse) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && eventType == handlers.EventDone:
			var done handlers.PlaythroughResponse
			if err := json.Unmarshal([]byte(data), &done); err != nil {
				return fmt.Errorf("failed to parse done event: %w", err)
			}
			out.State = &done.State
			return nil
		case line == "" && eventType != "":
			var cmd engine.Command
			if err := json.Unmarshal([]byte(data), &cmd); err != nil {
				return fmt.Errorf("failed to parse %s event: %w", eventType, err)
			}
			out.Commands = append(out.Commands, cmd)
			eventType, data = "", ""
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading event stream: %w", err)
	}
	return fmt.Errorf("event stream closed without a done event")
}
