package engine

import (
	"fmt"
	"strings"
)

// Labels of the history text the workflow is prompted with. They are part of
// the workflow's input contract.
const (
	questionLabel = "题目："
	choiceLabel   = "选择："
	resultLabel   = "结果："
	noneText      = "无"
)

// BuildHistoryText serializes the trailing window of history for the workflow.
// The outcome of the newest entry is never included; it is what the workflow is asked for.
func BuildHistoryText(history []HistoryEntry, window int) string {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	recent := history[max(0, len(history)-window):]

	parts := make([]string, 0, len(recent))
	for i, h := range recent {
		var b strings.Builder
		b.WriteString(questionLabel)
		b.WriteString(orNone(h.Question))
		b.WriteString("\n")
		b.WriteString(choiceLabel)
		b.WriteString(orNone(h.Choice))
		if i < len(recent)-1 && h.Summary != "" {
			b.WriteString("\n")
			b.WriteString(resultLabel)
			b.WriteString(h.Summary)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

func orNone(s string) string {
	if s == "" {
		return noneText
	}
	return s
}

// FormatTranscript renders the whole history as plain text for export.
func FormatTranscript(history []HistoryEntry) string {
	var b strings.Builder
	for i, h := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, h.Scene)
		if h.Question != "" {
			b.WriteString(h.Question + "\n")
		}
		b.WriteString("> " + h.Choice + "\n")
		if h.Summary != "" {
			b.WriteString("= " + h.Summary + "\n")
		}
	}
	return b.String()
}
