package content

import (
	"fmt"
	"sort"
)

// MissingLink is a reference from a scene to an undefined scene
type MissingLink struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Field string `json:"field"` // "next" or "next_scene"
}

func (m MissingLink) String() string {
	return fmt.Sprintf("From %s to %s", m.From, m.To)
}

// Validate reports choice targets and successors that name undefined scenes.
// Identifiers that refer to endings are skipped. Results are sorted by source scene.
func Validate(t *Table) []MissingLink {
	if t == nil {
		return nil
	}

	ids := make([]string, 0, len(t.Scenes))
	for id := range t.Scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var missing []MissingLink
	check := func(from, to, field string) {
		if to == "" || IsEndingID(to) {
			return
		}
		if _, ok := t.Scene(to); !ok {
			missing = append(missing, MissingLink{From: from, To: to, Field: field})
		}
	}

	for _, id := range ids {
		s := t.Scenes[id]
		if s == nil {
			continue
		}
		for _, c := range s.Choices {
			check(id, c.Next, "next")
		}
		check(id, s.NextScene, "next_scene")
	}
	return missing
}

// MissingEndings reports ending ids referenced by scenes but absent from the table.
func MissingEndings(t *Table) []MissingLink {
	if t == nil {
		return nil
	}

	ids := make([]string, 0, len(t.Scenes))
	for id := range t.Scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var missing []MissingLink
	for _, id := range ids {
		s := t.Scenes[id]
		if s == nil {
			continue
		}
		for _, endingID := range s.Endings {
			if _, ok := t.Ending(endingID); !ok {
				missing = append(missing, MissingLink{From: id, To: endingID, Field: "endings"})
			}
		}
		if s.NextScene == EndingScene && len(s.Endings) < len(s.Choices) {
			missing = append(missing, MissingLink{
				From:  id,
				To:    fmt.Sprintf("ending for choice %d", len(s.Endings)+1),
				Field: "endings",
			})
		}
	}
	return missing
}
