package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

const sampleJSON = `{
  "title": "Palace Intrigue",
  "scenes": {
    "scene1": {
      "chapter": "Chapter One",
      "chapter_name": "Into the Palace",
      "icon": "🏯",
      "text": "You arrive at the palace gates.",
      "choices": [
        {"text": "Bow deeply"},
        {"text": "Walk in proudly", "next": "scene9"}
      ],
      "next_scene": "scene2"
    },
    "scene2": {
      "text": "The emperor awaits.",
      "choices": [{"text": "Kneel"}, {"text": "Leave"}],
      "next_scene": "ending",
      "endings": ["ending1", "ending2"]
    }
  },
  "endings": {
    "ending1": {"title": "Loyal Servant", "type": "good", "text": "You serve for life."},
    "ending2": {"title": "Exile", "type": "bad", "text": "You wander the land.", "style_class": "ending-dark"}
  }
}`

const sampleYAML = `
start_scene: prologue
scenes:
  prologue:
    text: A quiet morning.
    choices:
      - text: Wake up
    next_scene: missing_scene
endings:
  ending1:
    title: Dream
    text: It was all a dream.
`

func TestParse_JSON(t *testing.T) {
	table, err := Parse([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "scene1", table.Start())
	s, ok := table.Scene("scene1")
	require.True(t, ok)
	assert.Equal(t, "scene1", s.ID)
	assert.Equal(t, "Into the Palace", s.ChapterName)
	assert.Equal(t, []string{"Bow deeply", "Walk in proudly"}, s.ChoiceLabels())
	assert.False(t, s.EndsGame())

	s2, ok := table.Scene("scene2")
	require.True(t, ok)
	assert.True(t, s2.EndsGame())

	e, ok := table.Ending("ending2")
	require.True(t, ok)
	assert.Equal(t, "ending2", e.ID)
	assert.Equal(t, "ending-dark", e.StyleClass)

	_, ok = table.Scene("nope")
	assert.False(t, ok)
	_, ok = table.Ending("ending9")
	assert.False(t, ok)
}

func TestParse_YAML(t *testing.T) {
	table, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "prologue", table.Start())
	s, ok := table.Scene("prologue")
	require.True(t, ok)
	assert.Equal(t, "A quiet morning.", s.Text)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"invalid json", `{"scenes":`, FormatJSON},
		{"no scenes", `{"scenes":{}}`, FormatJSON},
		{"missing start scene", `{"start_scene":"x","scenes":{"scene1":{"text":"a"}}}`, FormatJSON},
		{"unknown format", `{}`, Format("toml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "story.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSON), 0o644))
	table, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Len(t, table.Scenes, 2)

	yamlPath := filepath.Join(dir, "story.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o644))
	table, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Len(t, table.Scenes, 1)

	_, err = Load(filepath.Join(dir, "story.txt"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	table, err := Parse([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)

	missing := Validate(table)
	require.Len(t, missing, 1)
	assert.Equal(t, MissingLink{From: "scene1", To: "scene9", Field: "next"}, missing[0])
	assert.Equal(t, "From scene1 to scene9", missing[0].String())

	yamlTable, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	missing = Validate(yamlTable)
	require.Len(t, missing, 1)
	assert.Equal(t, "next_scene", missing[0].Field)
}

func TestValidate_SkipsEndingTargets(t *testing.T) {
	table := &Table{
		Scenes: map[string]*Scene{
			"scene1": {Choices: []Choice{{Text: "a", Next: "ending_victory"}, {Text: "b", Next: "ending3"}}, NextScene: "ending"},
		},
	}
	assert.Empty(t, Validate(table))
}

func TestMissingEndings(t *testing.T) {
	table := &Table{
		Scenes: map[string]*Scene{
			"scene1": {
				Choices:   []Choice{{Text: "a"}, {Text: "b"}, {Text: "c"}},
				NextScene: EndingScene,
				Endings:   []string{"ending1", "ending7"},
			},
		},
		Endings: map[string]*Ending{"ending1": {Title: "One"}},
	}

	missing := MissingEndings(table)
	require.Len(t, missing, 2)
	assert.Equal(t, "ending7", missing[0].To)
	assert.Equal(t, "ending for choice 3", missing[1].To)
}

func TestMissingEndings_EndingSceneWithoutList(t *testing.T) {
	table := &Table{
		Scenes: map[string]*Scene{
			"scene4": {
				Choices:   []Choice{{Text: "a"}, {Text: "b"}},
				NextScene: EndingScene,
			},
		},
	}

	assert.Empty(t, Validate(table))
	missing := MissingEndings(table)
	require.Len(t, missing, 1)
	assert.Equal(t, "scene4", missing[0].From)
	assert.Equal(t, "ending for choice 1", missing[0].To)
}

func TestEndingTypeLabel(t *testing.T) {
	tests := []struct {
		tag        language.Tag
		endingType string
		want       string
	}{
		{language.Chinese, "good", "完美结局"},
		{language.Chinese, "tragic", "宿命结局"},
		{language.Chinese, "love", "爱情结局"},
		{language.Chinese, "mystery", "未知结局"},
		{language.English, "power", "Ending of Power"},
		{language.English, "", "Unknown Ending"},
	}

	for _, tt := range tests {
		t.Run(tt.tag.String()+"/"+tt.endingType, func(t *testing.T) {
			assert.Equal(t, tt.want, EndingTypeLabel(tt.tag, tt.endingType))
		})
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "命运之轮转动，新篇章已开启。", Text(language.Chinese, MsgFallback))
	assert.Equal(t, "Continue", Text(language.English, MsgContinue))
	assert.Equal(t, language.Chinese, ParseLocale("not a locale!"))
	assert.Equal(t, language.English, ParseLocale("en"))
}

func TestIsEndingID(t *testing.T) {
	assert.True(t, IsEndingID("ending2"))
	assert.True(t, IsEndingID("ending_victory"))
	assert.False(t, IsEndingID("scene2"))
}

func TestRegisterTranslations(t *testing.T) {
	seen := map[language.Tag]int{}
	err := registerTranslations(func(tag language.Tag, key, msg string) error {
		seen[tag]++
		assert.NotEmpty(t, msg, key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, len(translations), seen[language.Chinese])
	assert.Equal(t, len(translations), seen[language.English])

	failing := errors.New("catalog closed")
	err = registerTranslations(func(language.Tag, string, string) error { return failing })
	assert.ErrorIs(t, err, failing)
}
