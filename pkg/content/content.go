package content

import "strings"

const (
	// DefaultStartScene is used when a table does not name its opening scene.
	DefaultStartScene = "scene1"

	// EndingScene as a next_scene value means the scene's choices map straight to endings.
	EndingScene = "ending"

	// EndingPrefix marks identifiers that refer to endings rather than scenes.
	EndingPrefix = "ending"
)

// Choice is one option offered by an authored scene
type Choice struct {
	Text    string `json:"text" yaml:"text"`                           // Label shown to the player
	Next    string `json:"next,omitempty" yaml:"next,omitempty"`       // Optional explicit target scene
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"` // Optional authored outcome text
}

// Scene is a hand-written key scene
type Scene struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`                     // Filled from the table key on load
	Chapter     string   `json:"chapter,omitempty" yaml:"chapter,omitempty"`           // e.g. "Chapter One"
	ChapterName string   `json:"chapter_name,omitempty" yaml:"chapter_name,omitempty"` // Subtitle shown next to the chapter
	Icon        string   `json:"icon,omitempty" yaml:"icon,omitempty"`                 // Emoji or short glyph
	Text        string   `json:"text" yaml:"text"`                                     // Scene prose (markdown allowed)
	Choices     []Choice `json:"choices" yaml:"choices"`                               // Player options
	NextScene   string   `json:"next_scene,omitempty" yaml:"next_scene,omitempty"`     // Authored successor once AI turns are exhausted
	Endings     []string `json:"endings,omitempty" yaml:"endings,omitempty"`           // Ending per choice index when NextScene is "ending"
}

// EndsGame reports whether the scene's choices lead directly to endings.
func (s *Scene) EndsGame() bool {
	return s.NextScene == EndingScene && len(s.Endings) > 0
}

// ChoiceLabels returns the choice texts in order.
func (s *Scene) ChoiceLabels() []string {
	labels := make([]string, 0, len(s.Choices))
	for _, c := range s.Choices {
		labels = append(labels, c.Text)
	}
	return labels
}

// Ending is a terminal scene
type Ending struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	Title      string `json:"title" yaml:"title"`
	Icon       string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"` // good, bad, power, freedom, ...
	Text       string `json:"text" yaml:"text"`
	StyleClass string `json:"style_class,omitempty" yaml:"style_class,omitempty"` // Presentation hint, passed through untouched
}

// Table is the read-only content of one story
type Table struct {
	Title      string             `json:"title,omitempty" yaml:"title,omitempty"`
	StartScene string             `json:"start_scene,omitempty" yaml:"start_scene,omitempty"`
	Scenes     map[string]*Scene  `json:"scenes" yaml:"scenes"`
	Endings    map[string]*Ending `json:"endings" yaml:"endings"`
}

// Scene looks up an authored scene by id.
func (t *Table) Scene(id string) (*Scene, bool) {
	if t == nil {
		return nil, false
	}
	s, ok := t.Scenes[id]
	return s, ok && s != nil
}

// Ending looks up an ending by id.
func (t *Table) Ending(id string) (*Ending, bool) {
	if t == nil {
		return nil, false
	}
	e, ok := t.Endings[id]
	return e, ok && e != nil
}

// Start returns the id of the opening scene.
func (t *Table) Start() string {
	if t == nil || t.StartScene == "" {
		return DefaultStartScene
	}
	return t.StartScene
}

// IsEndingID reports whether id names an ending rather than a scene.
func IsEndingID(id string) bool {
	return strings.HasPrefix(id, EndingPrefix)
}

// normalize copies map keys into the ID fields.
func (t *Table) normalize() {
	if t.Scenes == nil {
		t.Scenes = make(map[string]*Scene)
	}
	if t.Endings == nil {
		t.Endings = make(map[string]*Ending)
	}
	for id, s := range t.Scenes {
		if s != nil {
			s.ID = id
		}
	}
	for id, e := range t.Endings {
		if e != nil {
			e.ID = id
		}
	}
}
