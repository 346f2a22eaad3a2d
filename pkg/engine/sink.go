package engine

// SceneView is what the presentation layer needs to draw a scene
type SceneView struct {
	SceneID     string `json:"scene_id,omitempty"`
	AITurn      int    `json:"ai_turn,omitempty"`
	Chapter     string `json:"chapter,omitempty"`
	ChapterName string `json:"chapter_name,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Text        string `json:"text"`
}

// EndingView is a resolved ending ready for display
type EndingView struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Icon       string `json:"icon,omitempty"`
	Type       string `json:"type,omitempty"`
	TypeLabel  string `json:"type_label"`
	Text       string `json:"text"`
	StyleClass string `json:"style_class,omitempty"`
}

// Sink receives render commands. The engine calls it synchronously from
// whichever goroutine drives the engine.
type Sink interface {
	RenderScene(scene SceneView)
	RenderChoices(choices []string)
	BeginStreaming(placeholder string)
	AppendStreaming(text string)
	ResetStreaming(text string)
	ShowContinue(label string)
	ShowWaiting(label string)
	ShowEnding(ending EndingView)
	ShowError(message string)
}

// CommandType names a Sink call
type CommandType string

const (
	CmdRenderScene     CommandType = "render_scene"
	CmdRenderChoices   CommandType = "render_choices"
	CmdBeginStreaming  CommandType = "begin_streaming"
	CmdAppendStreaming CommandType = "append_streaming"
	CmdResetStreaming  CommandType = "reset_streaming"
	CmdShowContinue    CommandType = "show_continue"
	CmdShowWaiting     CommandType = "show_waiting"
	CmdShowEnding      CommandType = "show_ending"
	CmdShowError       CommandType = "show_error"
)

// Command is the serializable form of one Sink call
type Command struct {
	Type    CommandType `json:"type"`
	Scene   *SceneView  `json:"scene,omitempty"`
	Choices []string    `json:"choices,omitempty"`
	Text    string      `json:"text,omitempty"`
	Ending  *EndingView `json:"ending,omitempty"`
}

// SinkFunc adapts a function receiving Commands into a Sink.
type SinkFunc func(Command)

var _ Sink = SinkFunc(nil)

func (f SinkFunc) RenderScene(scene SceneView) {
	f(Command{Type: CmdRenderScene, Scene: &scene})
}

func (f SinkFunc) RenderChoices(choices []string) {
	f(Command{Type: CmdRenderChoices, Choices: append([]string{}, choices...)})
}

func (f SinkFunc) BeginStreaming(placeholder string) {
	f(Command{Type: CmdBeginStreaming, Text: placeholder})
}

func (f SinkFunc) AppendStreaming(text string) {
	f(Command{Type: CmdAppendStreaming, Text: text})
}

func (f SinkFunc) ResetStreaming(text string) {
	f(Command{Type: CmdResetStreaming, Text: text})
}

func (f SinkFunc) ShowContinue(label string) {
	f(Command{Type: CmdShowContinue, Text: label})
}

func (f SinkFunc) ShowWaiting(label string) {
	f(Command{Type: CmdShowWaiting, Text: label})
}

func (f SinkFunc) ShowEnding(ending EndingView) {
	f(Command{Type: CmdShowEnding, Ending: &ending})
}

func (f SinkFunc) ShowError(message string) {
	f(Command{Type: CmdShowError, Text: message})
}

// Apply replays a command onto a Sink.
func Apply(s Sink, c Command) {
	switch c.Type {
	case CmdRenderScene:
		if c.Scene != nil {
			s.RenderScene(*c.Scene)
		}
	case CmdRenderChoices:
		s.RenderChoices(c.Choices)
	case CmdBeginStreaming:
		s.BeginStreaming(c.Text)
	case CmdAppendStreaming:
		s.AppendStreaming(c.Text)
	case CmdResetStreaming:
		s.ResetStreaming(c.Text)
	case CmdShowContinue:
		s.ShowContinue(c.Text)
	case CmdShowWaiting:
		s.ShowWaiting(c.Text)
	case CmdShowEnding:
		if c.Ending != nil {
			s.ShowEnding(*c.Ending)
		}
	case CmdShowError:
		s.ShowError(c.Text)
	}
}

// Recorder is a Sink that keeps every command it receives
type Recorder struct {
	SinkFunc
	Commands []Command
}

func NewRecorder() *Recorder {
	r := &Recorder{}
	r.SinkFunc = func(c Command) {
		r.Commands = append(r.Commands, c)
	}
	return r
}

// Types lists the recorded command types in order.
func (r *Recorder) Types() []CommandType {
	types := make([]CommandType, len(r.Commands))
	for i, c := range r.Commands {
		types[i] = c.Type
	}
	return types
}

// Last returns the most recent command of type t.
func (r *Recorder) Last(t CommandType) (Command, bool) {
	for i := len(r.Commands) - 1; i >= 0; i-- {
		if r.Commands[i].Type == t {
			return r.Commands[i], true
		}
	}
	return Command{}, false
}

// Count returns how many commands of type t were recorded.
func (r *Recorder) Count(t CommandType) int {
	n := 0
	for _, c := range r.Commands {
		if c.Type == t {
			n++
		}
	}
	return n
}

// Streamed rebuilds the streaming text as a renderer applying the commands would show it.
func (r *Recorder) Streamed() string {
	var text string
	for _, c := range r.Commands {
		switch c.Type {
		case CmdBeginStreaming:
			text = ""
		case CmdAppendStreaming:
			text += c.Text
		case CmdResetStreaming:
			text = c.Text
		}
	}
	return text
}

// Clear drops recorded commands.
func (r *Recorder) Clear() {
	r.Commands = nil
}
