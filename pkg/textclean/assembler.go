package textclean

import "strings"

// Diff is the change a renderer must apply after one update
type Diff struct {
	Append string // Suffix to append to the rendered text
	Reset  bool   // Rendered text must be replaced by Text
	Text   string // Full rendered text after the update
}

// Empty reports whether the diff requires no rendering.
func (d Diff) Empty() bool {
	return !d.Reset && d.Append == ""
}

// Assembler accumulates raw stream text and tracks what has been rendered,
// emitting append-only diffs until the cleaned text stops extending the
// rendered prefix, at which point it asks for one full re-render.
type Assembler struct {
	raw      strings.Builder
	rendered string
}

// Add appends a raw delta and returns the render diff.
func (a *Assembler) Add(delta string) Diff {
	a.raw.WriteString(delta)
	return a.update(Clean(a.raw.String()))
}

func (a *Assembler) update(cleaned string) Diff {
	switch {
	case cleaned != "" && !strings.HasPrefix(cleaned, a.rendered):
		a.rendered = cleaned
		return Diff{Reset: true, Text: cleaned}
	case len(cleaned) > len(a.rendered):
		suffix := cleaned[len(a.rendered):]
		a.rendered = cleaned
		return Diff{Append: suffix, Text: cleaned}
	default:
		return Diff{Text: a.rendered}
	}
}

// Raw returns all text received so far.
func (a *Assembler) Raw() string {
	return a.raw.String()
}

// Rendered returns the text the renderer currently shows.
func (a *Assembler) Rendered() string {
	return a.rendered
}

// Restore rebuilds an assembler from persisted raw text.
func Restore(raw string) *Assembler {
	a := &Assembler{}
	a.raw.WriteString(raw)
	a.rendered = Clean(raw)
	return a
}
