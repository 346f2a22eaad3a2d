// Package engine drives a playthrough through authored key scenes, streamed
// AI-generated scenes and endings.
//
// An Engine is not safe for concurrent use. All calls, including HandleEvent
// for a running exchange, must come from the goroutine that owns it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/jwebster45206/fateweaver/pkg/content"
	"github.com/jwebster45206/fateweaver/pkg/payload"
	"github.com/jwebster45206/fateweaver/pkg/textclean"
	"github.com/jwebster45206/fateweaver/pkg/workflow"
)

var (
	ErrUnknownScene      = errors.New("scene not found")
	ErrUnknownEnding     = errors.New("ending not found")
	ErrInvalidChoice     = errors.New("choice index out of range")
	ErrChoiceUnavailable = errors.New("no choice can be made in the current phase")
	ErrNotAwaiting       = errors.New("no exchange is awaiting continue")
	ErrNoPayload         = errors.New("exchange finished without a result")
	ErrNoRetry           = errors.New("nothing to retry")
)

// Table is the read-only content the engine looks scenes and endings up in
type Table interface {
	Scene(id string) (*content.Scene, bool)
	Ending(id string) (*content.Ending, bool)
	Start() string
}

// Engine is the scene state machine of one playthrough
type Engine struct {
	table         Table
	sink          Sink
	logger        *slog.Logger
	lang          language.Tag
	maxAI         int
	historyWindow int

	state     State
	assembler *textclean.Assembler
}

// Option configures an Engine
type Option func(*Engine)

// WithMaxAIGenerated sets how many AI scenes are played between key scenes.
// Values below 1 are raised to 1.
func WithMaxAIGenerated(n int) Option {
	return func(e *Engine) {
		e.maxAI = max(n, 1)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLanguage selects the locale of fixed engine messages.
func WithLanguage(tag language.Tag) Option {
	return func(e *Engine) {
		e.lang = tag
	}
}

// WithHistoryWindow sets how many trailing history entries are sent per exchange.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyWindow = n
		}
	}
}

// WithState resumes a previously snapshotted playthrough.
func WithState(s State) Option {
	return func(e *Engine) {
		restored := s.clone()
		e.state = restored
	}
}

// New creates an engine positioned at the table's start scene.
func New(table Table, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		table:         table,
		sink:          sink,
		logger:        slog.Default(),
		lang:          language.Chinese,
		maxAI:         DefaultMaxAIGenerated,
		historyWindow: DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.state.Phase == "" {
		e.state = newState(table.Start(), e.maxAI)
	}
	if e.state.MaxAIGenerated < 1 {
		e.state.MaxAIGenerated = e.maxAI
	}
	e.assembler = textclean.Restore(e.state.StreamedText)
	return e
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	return e.state.clone()
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	return e.state.Phase
}

// SetSink replaces the render target, e.g. per HTTP request.
func (e *Engine) SetSink(s Sink) {
	e.sink = s
}

// Start renders the opening scene.
func (e *Engine) Start() error {
	return e.Redraw()
}

// Redraw re-issues the render commands for the current phase.
func (e *Engine) Redraw() error {
	switch e.state.Phase {
	case PhaseAuthoredScene:
		return e.renderAuthored()
	case PhaseAwaitingAI:
		e.sink.BeginStreaming(e.text(content.MsgLoading))
		if rendered := e.assembler.Rendered(); rendered != "" {
			e.sink.ResetStreaming(rendered)
		} else if e.state.FallbackShown {
			e.sink.ResetStreaming(e.text(content.MsgFallback))
		}
		if e.state.ContinueShown {
			e.sink.ShowContinue(e.text(content.MsgContinue))
		}
		if e.state.ContinueRequested {
			e.sink.ShowWaiting(e.text(content.MsgWaiting))
		}
	case PhaseAIScene:
		e.renderAI()
	case PhaseEnding:
		ending, ok := e.table.Ending(e.state.EndingID)
		if !ok {
			e.logger.Error("Ending not found", "ending_id", e.state.EndingID)
			return fmt.Errorf("%w: %s", ErrUnknownEnding, e.state.EndingID)
		}
		e.sink.ShowEnding(e.endingView(ending))
	case PhaseError:
		e.sink.ShowError(e.state.ErrorMessage)
	}
	return nil
}

// Choose selects a choice of the scene on screen. It returns the workflow
// request to run when the choice starts an exchange, or nil when the
// transition completed locally.
func (e *Engine) Choose(index int) (*workflow.RunRequest, error) {
	switch e.state.Phase {
	case PhaseAuthoredScene:
		return e.chooseAuthored(index)
	case PhaseAIScene:
		return e.chooseAI(index)
	default:
		return nil, fmt.Errorf("%w: %s", ErrChoiceUnavailable, e.state.Phase)
	}
}

func (e *Engine) chooseAuthored(index int) (*workflow.RunRequest, error) {
	id := e.state.CurrentScene
	scene, ok := e.table.Scene(id)
	if !ok {
		e.logger.Error("Scene not found", "scene_id", id)
		return nil, fmt.Errorf("%w: %s", ErrUnknownScene, id)
	}
	if index < 0 || index >= len(scene.Choices) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidChoice, index, len(scene.Choices))
	}
	choice := scene.Choices[index]

	if scene.EndsGame() {
		if index >= len(scene.Endings) {
			e.logger.Error("Scene has no ending for choice", "scene_id", id, "choice", index)
			return nil, fmt.Errorf("%w: %s choice %d", ErrUnknownEnding, id, index)
		}
		endingID := scene.Endings[index]
		ending, ok := e.table.Ending(endingID)
		if !ok {
			e.logger.Error("Ending not found", "ending_id", endingID, "scene_id", id)
			return nil, fmt.Errorf("%w: %s", ErrUnknownEnding, endingID)
		}
		summary := choice.Summary
		if summary == "" {
			summary = ending.Title
		}
		e.record(AuthoredRef(id), scene.Text, choice.Text, summary)
		e.showEnding(ending)
		return nil, nil
	}

	e.record(AuthoredRef(id), scene.Text, choice.Text, "")
	return e.beginExchange(), nil
}

func (e *Engine) chooseAI(index int) (*workflow.RunRequest, error) {
	current := e.state.CurrentAI
	if current == nil {
		return nil, fmt.Errorf("%w: no generated scene on screen", ErrChoiceUnavailable)
	}
	options := current.Options()
	if index < 0 || index >= len(options) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidChoice, index, len(options))
	}
	option := options[index]
	ref := AIRef(e.state.AIGeneratedCount)

	if e.state.AIGeneratedCount < e.state.MaxAIGenerated {
		e.record(ref, current.NewStory, option.Label, "")
		return e.beginExchange(), nil
	}

	// AI turns exhausted: return to the authored graph without an exchange
	key, ok := e.table.Scene(e.state.CurrentKeyScene)
	if !ok {
		e.logger.Error("Key scene not found", "scene_id", e.state.CurrentKeyScene)
		return nil, fmt.Errorf("%w: %s", ErrUnknownScene, e.state.CurrentKeyScene)
	}
	next := key.NextScene
	if _, ok := e.table.Scene(next); !ok {
		e.logger.Error("Successor scene not found", "scene_id", next, "key_scene", key.ID)
		return nil, fmt.Errorf("%w: %q after %s", ErrUnknownScene, next, key.ID)
	}

	summary := current.SlotResult(option.Slot)
	if summary == "" {
		summary = current.Summary
	}
	if summary == "" {
		summary = option.Label
	}
	e.record(ref, current.NewStory, option.Label, summary)

	e.logger.Debug("Returning to authored scenes", "from", key.ID, "to", next)
	e.state.AIGeneratedCount = 0
	e.state.CurrentKeyScene = next
	e.state.CurrentScene = next
	e.state.CurrentAI = nil
	e.state.Phase = PhaseAuthoredScene
	return nil, e.renderAuthored()
}

// HandleEvent applies one decoded stream event to the running exchange.
func (e *Engine) HandleEvent(ev workflow.Event) {
	if e.state.Phase != PhaseAwaitingAI {
		e.logger.Debug("Ignoring stream event outside an exchange", "phase", e.state.Phase)
		return
	}

	text := ev.ContentText()
	if ev.NodeType == workflow.NodeMessage && text != "" && !ev.IsStructured() && !containsFinalMarker(text) {
		e.state.StreamedText += text
		diff := e.assembler.Add(text)
		switch {
		case diff.Reset:
			e.sink.ResetStreaming(diff.Text)
		case diff.Append != "":
			e.sink.AppendStreaming(diff.Append)
		}
		if ev.IsFinished {
			e.showContinue()
		}
	}

	if c, ok := payload.Detect(ev); ok {
		e.state.PendingAI = c
		e.state.Ready = true
		e.backfillSummary(c)
		e.logger.Debug("Final payload detected", "ending", c.IsEnding(), "choices", len(c.Options()))
		if e.state.ContinueRequested {
			if err := e.present(); err != nil {
				e.logger.Warn("Failed to present payload", "error", err)
			}
			return
		}
	}

	if ev.HasError() {
		e.logger.Warn("Workflow reported an error",
			"error_code", string(ev.ErrorCode),
			"error_message", ev.ErrorMessage)
	}
}

// containsFinalMarker matches the quoted key so prose mentioning the word still streams.
func containsFinalMarker(text string) bool {
	return strings.Contains(text, `"newstory"`)
}

// FinishExchange is called once the stream has ended, with the transport error if any.
func (e *Engine) FinishExchange(err error) {
	if e.state.Phase != PhaseAwaitingAI {
		return
	}
	if err != nil {
		e.fail(content.MsgStreamFailed, err)
		return
	}

	e.state.StreamDone = true
	if !e.state.ContinueShown {
		if utf8.RuneCountInString(e.assembler.Rendered()) < 2 {
			e.state.FallbackShown = true
			e.sink.ResetStreaming(e.text(content.MsgFallback))
		}
		e.showContinue()
	}

	if e.state.ContinueRequested && !e.state.Ready {
		e.fail(content.MsgNoPayload, ErrNoPayload)
	}
}

// Continue presents the detected payload, or waits for it if it has not arrived yet.
func (e *Engine) Continue() error {
	if e.state.Phase != PhaseAwaitingAI {
		return fmt.Errorf("%w: %s", ErrNotAwaiting, e.state.Phase)
	}
	if e.state.Ready {
		return e.present()
	}
	if e.state.StreamDone {
		e.fail(content.MsgNoPayload, ErrNoPayload)
		return ErrNoPayload
	}
	if !e.state.ContinueRequested {
		e.state.ContinueRequested = true
		e.sink.ShowWaiting(e.text(content.MsgWaiting))
	}
	return nil
}

// Retry re-issues the failed exchange with the unchanged history window.
func (e *Engine) Retry() (*workflow.RunRequest, error) {
	if e.state.Phase != PhaseError {
		return nil, fmt.Errorf("%w: %s", ErrNoRetry, e.state.Phase)
	}
	e.state.ErrorMessage = ""
	return e.beginExchange(), nil
}

// Restart resets the playthrough to the start scene.
func (e *Engine) Restart() error {
	e.state = newState(e.table.Start(), e.maxAI)
	e.assembler = &textclean.Assembler{}
	return e.renderAuthored()
}

// Play runs req against s, routing every event through HandleEvent, and
// finishes the exchange. A nil req is a no-op.
func (e *Engine) Play(ctx context.Context, s workflow.Streamer, req *workflow.RunRequest) error {
	if req == nil {
		return nil
	}
	err := s.Stream(ctx, req, func(ev workflow.Event) error {
		e.HandleEvent(ev)
		return nil
	})
	e.FinishExchange(err)
	return err
}

// Request rebuilds the workflow request for the current history.
func (e *Engine) Request() *workflow.RunRequest {
	return &workflow.RunRequest{
		Parameters: workflow.RunParameters{
			History: BuildHistoryText(e.state.History, e.historyWindow),
			Number:  e.state.AIGeneratedCount + 1,
		},
	}
}

func (e *Engine) beginExchange() *workflow.RunRequest {
	e.state.Phase = PhaseAwaitingAI
	e.state.clearExchange()
	e.assembler = &textclean.Assembler{}
	e.sink.BeginStreaming(e.text(content.MsgLoading))
	return e.Request()
}

func (e *Engine) record(ref SceneRef, question, choice, summary string) {
	e.state.History = append(e.state.History, HistoryEntry{
		Scene:    ref,
		Question: question,
		Choice:   choice,
		Summary:  summary,
		Stats:    e.state.Stats,
	})
}

func (e *Engine) backfillSummary(c *payload.Content) {
	if len(e.state.History) == 0 {
		return
	}
	last := &e.state.History[len(e.state.History)-1]
	summary := c.SummaryFor(textclean.Clean(e.state.StreamedText))
	if summary == "" {
		summary = last.Choice
	}
	if summary == "" {
		summary = e.text(content.MsgFallback)
	}
	last.Summary = summary
}

func (e *Engine) showContinue() {
	if e.state.ContinueShown {
		return
	}
	e.state.ContinueShown = true
	e.sink.ShowContinue(e.text(content.MsgContinue))
}

func (e *Engine) present() error {
	c := e.state.PendingAI
	if c == nil {
		return ErrNoPayload
	}

	if c.IsEnding() {
		n, ok := c.Ending()
		if !ok {
			e.logger.Error("Malformed ending marker", "output", c.Output)
			return fmt.Errorf("%w: %q", ErrUnknownEnding, c.Output)
		}
		id := fmt.Sprintf("%s%d", content.EndingPrefix, n)
		ending, ok := e.table.Ending(id)
		if !ok {
			e.logger.Error("Ending not found", "ending_id", id)
			return fmt.Errorf("%w: %s", ErrUnknownEnding, id)
		}
		e.showEnding(ending)
		return nil
	}

	e.state.AIGeneratedCount++
	e.state.CurrentAI = c
	e.state.Phase = PhaseAIScene
	e.state.clearExchange()
	e.assembler = &textclean.Assembler{}
	e.renderAI()
	return nil
}

func (e *Engine) showEnding(ending *content.Ending) {
	e.state.Phase = PhaseEnding
	e.state.EndingID = ending.ID
	e.state.CurrentAI = nil
	e.state.clearExchange()
	e.assembler = &textclean.Assembler{}
	e.logger.Info("Playthrough reached an ending", "ending_id", ending.ID, "history", len(e.state.History))
	e.sink.ShowEnding(e.endingView(ending))
}

func (e *Engine) fail(msgKey string, err error) {
	e.state.Phase = PhaseError
	e.state.ErrorMessage = e.text(msgKey)
	e.logger.Error("Exchange failed", "error", err, "history", len(e.state.History))
	e.sink.ShowError(e.state.ErrorMessage)
}

func (e *Engine) renderAuthored() error {
	id := e.state.CurrentScene
	scene, ok := e.table.Scene(id)
	if !ok {
		e.logger.Error("Scene not found", "scene_id", id)
		return fmt.Errorf("%w: %s", ErrUnknownScene, id)
	}
	e.sink.RenderScene(SceneView{
		SceneID:     id,
		Chapter:     scene.Chapter,
		ChapterName: scene.ChapterName,
		Icon:        scene.Icon,
		Text:        scene.Text,
	})
	e.sink.RenderChoices(scene.ChoiceLabels())
	return nil
}

func (e *Engine) renderAI() {
	if e.state.CurrentAI == nil {
		e.logger.Error("No generated scene to render", "ai_turn", e.state.AIGeneratedCount)
		return
	}
	view := SceneView{
		AITurn: e.state.AIGeneratedCount,
		Text:   e.state.CurrentAI.NewStory,
	}
	if key, ok := e.table.Scene(e.state.CurrentKeyScene); ok {
		view.Chapter = key.Chapter
		view.ChapterName = key.ChapterName
	}
	e.sink.RenderScene(view)
	e.sink.RenderChoices(e.state.CurrentAI.Labels())
}

func (e *Engine) endingView(ending *content.Ending) EndingView {
	return EndingView{
		ID:         ending.ID,
		Title:      ending.Title,
		Icon:       ending.Icon,
		Type:       ending.Type,
		TypeLabel:  content.EndingTypeLabel(e.lang, ending.Type),
		Text:       ending.Text,
		StyleClass: ending.StyleClass,
	}
}

func (e *Engine) text(key string) string {
	return content.Text(e.lang, key)
}
