package main

import "github.com/jwebster45206/fateweaver/pkg/engine"

// screen is what the console currently shows, rebuilt from render commands
type screen struct {
	scene   *engine.SceneView
	choices []string

	streaming   bool
	placeholder string
	streamed    string

	continueLabel string
	waitingLabel  string

	ending *engine.EndingView
	errMsg string
}

var _ engine.Sink = (*screen)(nil)

func (s *screen) RenderScene(scene engine.SceneView) {
	*s = screen{scene: &scene}
}

func (s *screen) RenderChoices(choices []string) {
	s.choices = choices
}

func (s *screen) BeginStreaming(placeholder string) {
	s.choices = nil
	s.streaming = true
	s.placeholder = placeholder
	s.streamed = ""
	s.continueLabel = ""
	s.waitingLabel = ""
	s.errMsg = ""
}

func (s *screen) AppendStreaming(text string) {
	s.streamed += text
}

func (s *screen) ResetStreaming(text string) {
	s.streamed = text
}

func (s *screen) ShowContinue(label string) {
	s.continueLabel = label
}

func (s *screen) ShowWaiting(label string) {
	s.waitingLabel = label
}

func (s *screen) ShowEnding(ending engine.EndingView) {
	*s = screen{ending: &ending}
}

func (s *screen) ShowError(message string) {
	s.streaming = false
	s.continueLabel = ""
	s.waitingLabel = ""
	s.errMsg = message
}

// awaiting reports whether an exchange is on screen and not yet presented.
func (s *screen) awaiting() bool {
	return s.streaming && s.errMsg == ""
}
