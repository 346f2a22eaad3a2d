package workflow

import (
	"bytes"
	"encoding/json"
)

// NodeType is the workflow node that produced an event
type NodeType string

const (
	NodeMessage        NodeType = "Message"
	NodeWorkflowOutput NodeType = "WorkflowOutput"
	NodeOther          NodeType = "Other"
)

// Event is one decoded data record of a workflow stream
type Event struct {
	NodeType     NodeType        `json:"node_type,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`        // JSON string or structured value
	IsFinished   bool            `json:"node_is_finish,omitempty"` // The emitting node completed
	ErrorCode    json.RawMessage `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Class folds unknown node types into NodeOther.
func (e Event) Class() NodeType {
	switch e.NodeType {
	case NodeMessage, NodeWorkflowOutput:
		return e.NodeType
	default:
		return NodeOther
	}
}

// IsStructured reports whether content is a JSON object rather than text.
func (e Event) IsStructured() bool {
	c := bytes.TrimSpace(e.Content)
	return len(c) > 0 && c[0] == '{'
}

// ContentText returns string content unquoted and anything else as raw JSON.
func (e Event) ContentText() string {
	c := bytes.TrimSpace(e.Content)
	if len(c) == 0 || bytes.Equal(c, []byte("null")) {
		return ""
	}
	if c[0] == '"' {
		var s string
		if err := json.Unmarshal(c, &s); err == nil {
			return s
		}
	}
	return string(c)
}

// HasError reports a truthy error_code.
func (e Event) HasError() bool {
	c := bytes.TrimSpace(e.ErrorCode)
	switch string(c) {
	case "", "null", "0", `""`, "false":
		return false
	}
	return true
}

// RunRequest is the body of a workflow stream_run call
type RunRequest struct {
	WorkflowID string        `json:"workflow_id"`
	Parameters RunParameters `json:"parameters"`
}

// RunParameters carries the playthrough context sent to the workflow
type RunParameters struct {
	History string `json:"history"` // Serialized trailing history window
	Number  int    `json:"number"`  // 1-based index of the AI scene being requested
}
