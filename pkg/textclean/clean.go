// Package textclean turns partially streamed JSON-wrapped model output into
// displayable prose.
package textclean

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	partialFence = regexp.MustCompile("`{1,3}(?:j|js|jso)?$")
	jsonFence    = regexp.MustCompile("```json\\s*")
	bareFence    = regexp.MustCompile("```\\s*")
	openValue    = regexp.MustCompile(`(?s):\s*"(.*)$`)
	closingQuote = regexp.MustCompile(`"\s*\}?$`)

	escapedNewline = strings.NewReplacer(`\n`, "\n")
	escapedQuote   = strings.NewReplacer(`\"`, `"`)
)

// proseFields are checked in order on a parsed object.
var proseFields = []string{"result", "content", "summary"}

// Clean returns the readable prose contained in raw so far.
// raw is the whole text accumulated for the stream, not a delta.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned := strings.TrimSpace(raw)
	// A fence still arriving at the tail is held back until it completes
	cleaned = partialFence.ReplaceAllString(cleaned, "")
	cleaned = jsonFence.ReplaceAllString(cleaned, "")
	cleaned = bareFence.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if !strings.HasPrefix(cleaned, "{") {
		return cleaned
	}

	// Only a brace or the start of a key so far
	if len(cleaned) < 5 && !strings.Contains(cleaned, `"`) {
		return ""
	}

	candidate := cleaned
	if !strings.HasSuffix(candidate, "}") {
		candidate += `"}`
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		found := false
		for _, field := range proseFields {
			s, ok := obj[field].(string)
			if !ok {
				continue
			}
			if s != "" {
				return s
			}
			found = true
		}
		if found {
			return ""
		}
		// A complete object without prose fields is shown as is
		return cleaned
	}

	m := openValue.FindStringSubmatch(cleaned)
	if m == nil {
		return ""
	}
	text := escapedNewline.Replace(m[1])
	text = escapedQuote.Replace(text)
	return closingQuote.ReplaceAllString(text, "")
}
