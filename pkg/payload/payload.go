// Package payload recognizes the authoritative end-of-turn result inside a
// workflow event stream.
package payload

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/jwebster45206/fateweaver/pkg/workflow"
)

const endingMarker = "end-"

var endingPattern = regexp.MustCompile(`^end-(\d+)`)

// Content is the structured result of one AI turn
type Content struct {
	NewStory string `json:"newstory,omitempty"` // Next scene prose
	Choose1  string `json:"choose1,omitempty"`
	Choose2  string `json:"choose2,omitempty"`
	Choose3  string `json:"choose3,omitempty"`
	Choose4  string `json:"choose4,omitempty"`
	Result   string `json:"result,omitempty"`  // Outcome of the previous choice
	Summary  string `json:"summary,omitempty"` // Alternative outcome field
	Output   string `json:"output,omitempty"`  // "end-<n>" when the story ends
	Result1  string `json:"result1,omitempty"` // Per-choice outcomes, used when leaving the AI loop
	Result2  string `json:"result2,omitempty"`
	Result3  string `json:"result3,omitempty"`
	Result4  string `json:"result4,omitempty"`
}

// Option is a selectable choice and the choose slot (1-4) it came from
type Option struct {
	Label string `json:"label"`
	Slot  int    `json:"slot"`
}

// Options returns the non-blank choices in slot order.
func (c *Content) Options() []Option {
	var opts []Option
	for i, label := range []string{c.Choose1, c.Choose2, c.Choose3, c.Choose4} {
		if strings.TrimSpace(label) != "" {
			opts = append(opts, Option{Label: label, Slot: i + 1})
		}
	}
	return opts
}

// Labels returns the option labels.
func (c *Content) Labels() []string {
	opts := c.Options()
	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = o.Label
	}
	return labels
}

// SlotResult returns the per-choice outcome for a choose slot.
func (c *Content) SlotResult(slot int) string {
	switch slot {
	case 1:
		return c.Result1
	case 2:
		return c.Result2
	case 3:
		return c.Result3
	case 4:
		return c.Result4
	}
	return ""
}

// Ending reports the ending number encoded in Output.
func (c *Content) Ending() (int, bool) {
	if c == nil {
		return 0, false
	}
	return ParseEnding(c.Output)
}

// IsEnding reports whether the payload ends the story.
func (c *Content) IsEnding() bool {
	return c != nil && strings.HasPrefix(c.Output, endingMarker)
}

// Valid reports whether the payload can drive a transition.
func (c *Content) Valid() bool {
	return c != nil && (c.NewStory != "" || c.IsEnding())
}

// SummaryFor returns the outcome text to record for the previous choice.
func (c *Content) SummaryFor(streamed string) string {
	if c.Result != "" {
		return c.Result
	}
	if c.Summary != "" {
		return c.Summary
	}
	return streamed
}

// ParseEnding extracts n from an "end-<n>" marker.
func ParseEnding(s string) (int, bool) {
	m := endingPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsCandidate reports whether an event may carry the final payload.
// Any content mentioning newstory or end- qualifies, so narrative prose
// containing those words is inspected too.
func IsCandidate(ev workflow.Event) bool {
	if ev.NodeType == workflow.NodeWorkflowOutput {
		return true
	}
	text := ev.ContentText()
	return strings.Contains(text, "newstory") || strings.Contains(text, endingMarker)
}

// Detect returns the final payload carried by ev, if any.
// Malformed or incomplete JSON is not an error; it simply yields no payload.
func Detect(ev workflow.Event) (*Content, bool) {
	if !IsCandidate(ev) {
		return nil, false
	}

	if ev.IsStructured() {
		return parseObject(ev.Content)
	}

	text := strings.TrimSpace(ev.ContentText())
	if strings.HasPrefix(text, endingMarker) {
		return &Content{Output: text}, true
	}

	return Parse(text)
}

// Parse extracts and decodes a JSON block from free text.
func Parse(text string) (*Content, bool) {
	block := ExtractJSONBlock(text)
	if block == "" {
		return nil, false
	}
	return parseObject([]byte(block))
}

// ExtractJSONBlock returns the body of the first ```json fence, else the
// first bare ``` fence, else the trimmed text itself.
func ExtractJSONBlock(text string) string {
	if _, after, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(text, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

// parseObject decodes leniently: non-string values are ignored rather than
// failing the whole payload.
func parseObject(data []byte) (*Content, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}

	c := &Content{
		NewStory: str("newstory"),
		Choose1:  str("choose1"),
		Choose2:  str("choose2"),
		Choose3:  str("choose3"),
		Choose4:  str("choose4"),
		Result:   str("result"),
		Summary:  str("summary"),
		Output:   strings.TrimSpace(str("output")),
		Result1:  str("result1"),
		Result2:  str("result2"),
		Result3:  str("result3"),
		Result4:  str("result4"),
	}
	if !c.Valid() {
		return nil, false
	}
	return c, true
}
