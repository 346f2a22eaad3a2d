package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/language"

	"github.com/jwebster45206/fateweaver/internal/handlers"
	"github.com/jwebster45206/fateweaver/pkg/content"
	"github.com/jwebster45206/fateweaver/pkg/engine"
)

const AppTitle = "FATEWEAVER"

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	api      *apiClient
	ctx      context.Context
	cancel   context.CancelFunc // Ends any open action stream on quit
	lang     language.Tag
	resumeID uuid.UUID

	id     uuid.UUID
	state  engine.State
	screen *screen

	storyViewport viewport.Model
	metaViewport  viewport.Model
	spinner       spinner.Model
	renderer      *glamour.TermRenderer
	rendererWidth int

	selected int
	ready    bool
	width    int
	height   int
	err      error
	status   string

	// An action stream is open; further actions wait for it to close
	busy            bool
	events          chan tea.Msg
	pendingContinue bool

	showQuitModal bool
}

type playthroughMsg struct {
	resp *handlers.PlaythroughResponse
	err  error
}

type commandMsg struct {
	cmd engine.Command
}

type actionDoneMsg struct {
	action string
	state  *engine.State
	err    error
}

var (
	storyPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(3)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	chapterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	selectedChoiceStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	endingStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 2)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

// NewConsoleUI creates the model. A non-nil resumeID continues an existing
// playthrough instead of starting a new one.
func NewConsoleUI(ctx context.Context, api *apiClient, lang language.Tag, resumeID uuid.UUID) ConsoleUI {
	ctx, cancel := context.WithCancel(ctx)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = loadingStyle

	storyVp := viewport.New(60, 20)
	storyVp.MouseWheelEnabled = true

	return ConsoleUI{
		api:           api,
		ctx:           ctx,
		cancel:        cancel,
		lang:          lang,
		resumeID:      resumeID,
		screen:        &screen{},
		storyViewport: storyVp,
		metaViewport:  viewport.New(24, 20),
		spinner:       sp,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadPlaythrough())
}

func (m ConsoleUI) loadPlaythrough() tea.Cmd {
	api, id := m.api, m.resumeID
	return func() tea.Msg {
		if id != uuid.Nil {
			resp, err := api.getPlaythrough(id)
			return playthroughMsg{resp, err}
		}
		resp, err := api.createPlaythrough()
		return playthroughMsg{resp, err}
	}
}

// startAction opens an action stream. Commands arrive one by one through m.events.
func (m *ConsoleUI) startAction(action string, body any) tea.Cmd {
	m.busy = true
	m.err = nil
	m.status = ""
	events := make(chan tea.Msg, 64)
	m.events = events

	ctx, api, id := m.ctx, m.api, m.id
	go func() {
		defer close(events)
		state, err := api.streamAction(ctx, id, action, body, func(c engine.Command) {
			select {
			case events <- commandMsg{c}:
			case <-ctx.Done():
			}
		})
		select {
		case events <- actionDoneMsg{action: action, state: state, err: err}:
		case <-ctx.Done():
		}
	}()
	return waitForEvent(events)
}

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy {
			m.refresh()
		}
		return m, cmd

	case playthroughMsg:
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.id = msg.resp.ID
		m.state = msg.resp.State
		m.screen = &screen{}
		for _, c := range msg.resp.Commands {
			engine.Apply(m.screen, c)
		}
		m.selected = 0

	case commandMsg:
		engine.Apply(m.screen, msg.cmd)
		if msg.cmd.Type == engine.CmdRenderChoices {
			m.selected = 0
		}
		m.refresh()
		return m, waitForEvent(m.events)

	case actionDoneMsg:
		m.busy = false
		m.events = nil
		if msg.err != nil {
			m.err = msg.err
			m.pendingContinue = false
		}
		if msg.state != nil {
			m.state = *msg.state
		}
		if m.pendingContinue {
			m.pendingContinue = false
			if m.state.Phase == engine.PhaseAwaitingAI {
				cmds = append(cmds, m.startAction(handlers.ActionContinue, nil))
			}
		}

	case tea.KeyMsg:
		if cmd := m.handleKey(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
		if m.showQuitModal {
			return m, tea.Batch(cmds...)
		}
	}

	var vpCmd tea.Cmd
	m.storyViewport, vpCmd = m.storyViewport.Update(msg)
	cmds = append(cmds, vpCmd)

	m.refresh()
	return m, tea.Batch(cmds...)
}

func (m *ConsoleUI) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.showQuitModal = true
		return nil
	case tea.KeyUp:
		if m.selected > 0 {
			m.selected--
		}
		return nil
	case tea.KeyDown:
		if m.selected < len(m.screen.choices)-1 {
			m.selected++
		}
		return nil
	case tea.KeyEnter:
		return m.choose(m.selected)
	}

	key := msg.String()
	switch key {
	case "c":
		return m.requestContinue()
	case "r":
		if m.busy || m.screen.errMsg == "" {
			return nil
		}
		return m.startAction(handlers.ActionRetry, nil)
	case "n":
		if m.busy {
			return nil
		}
		return m.startAction(handlers.ActionRestart, nil)
	case "y":
		if err := clipboard.WriteAll(engine.FormatTranscript(m.state.History)); err != nil {
			m.status = "Copy failed: " + err.Error()
		} else {
			m.status = "Transcript copied to clipboard"
		}
		return nil
	}

	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		return m.choose(int(key[0] - '1'))
	}
	return nil
}

func (m *ConsoleUI) choose(index int) tea.Cmd {
	if m.busy || index < 0 || index >= len(m.screen.choices) {
		return nil
	}
	m.selected = index
	return m.startAction(handlers.ActionChoose, handlers.ChooseRequest{Index: &index})
}

// requestContinue sends continue now, or once the open exchange stream closes.
func (m *ConsoleUI) requestContinue() tea.Cmd {
	if !m.screen.awaiting() || m.pendingContinue {
		return nil
	}
	if m.busy {
		m.pendingContinue = true
		m.screen.ShowWaiting(content.Text(m.lang, content.MsgWaiting))
		return nil
	}
	return m.startAction(handlers.ActionContinue, nil)
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m, m.quit()
			case "n", "N":
				m.showQuitModal = false
			}
		}

	case commandMsg:
		// Keep draining the open stream behind the modal
		engine.Apply(m.screen, msg.cmd)
		return m, waitForEvent(m.events)

	case actionDoneMsg:
		m.busy = false
		m.events = nil
		m.pendingContinue = false
		if msg.state != nil {
			m.state = *msg.state
		}
	}
	return m, nil
}

// quit cancels the open action stream, if any, and stops the program.
func (m ConsoleUI) quit() tea.Cmd {
	m.cancel()
	return tea.Quit
}

func (m *ConsoleUI) resize() {
	storyWidth := int(float64(m.width)*0.72) - 4
	metaWidth := m.width - storyWidth - 6

	m.storyViewport.Width = max(storyWidth-2, 20)
	m.storyViewport.Height = max(m.height-3, 5)
	m.metaViewport.Width = max(metaWidth-2, 10)
	m.metaViewport.Height = max(m.height-2, 5)
	m.refresh()
}

func (m *ConsoleUI) textWidth() int {
	return max(m.storyViewport.Width-4, 20)
}

// renderAuthored renders hand-written scene text as markdown.
func (m *ConsoleUI) renderAuthored(text string) string {
	width := m.textWidth()
	if m.renderer == nil || m.rendererWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return wordwrap.String(text, width)
		}
		m.renderer, m.rendererWidth = r, width
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return wordwrap.String(text, width)
	}
	return strings.TrimRight(out, "\n")
}

func (m *ConsoleUI) refresh() {
	m.storyViewport.SetContent(m.storyContent())
	if m.busy {
		m.storyViewport.GotoBottom()
	}
	m.metaViewport.SetContent(m.metaContent())
}

func (m *ConsoleUI) storyContent() string {
	var b strings.Builder
	width := m.textWidth()
	s := m.screen

	b.WriteString(titleStyle.Render(AppTitle) + "\n\n")

	if s.ending != nil {
		var e strings.Builder
		e.WriteString(titleStyle.Render(strings.TrimSpace(s.ending.Icon+" "+s.ending.Title)) + "\n")
		e.WriteString(chapterStyle.Render(s.ending.TypeLabel) + "\n\n")
		e.WriteString(wordwrap.String(s.ending.Text, width-6))
		b.WriteString(endingStyle.Width(width).Render(e.String()) + "\n\n")
		b.WriteString(promptStyle.Render("[n] " + content.Text(m.lang, content.MsgRestart)))
		return b.String()
	}

	if s.scene != nil {
		heading := strings.TrimSpace(strings.Join([]string{s.scene.Icon, s.scene.Chapter, s.scene.ChapterName}, " "))
		if s.scene.AITurn > 0 {
			heading = strings.TrimSpace(fmt.Sprintf("%s · %d", heading, s.scene.AITurn))
		}
		if heading != "" {
			b.WriteString(chapterStyle.Render(heading) + "\n\n")
		}
		if s.scene.SceneID != "" {
			b.WriteString(m.renderAuthored(s.scene.Text) + "\n\n")
		} else {
			b.WriteString(narratorStyle.Render(wordwrap.String(s.scene.Text, width)) + "\n\n")
		}
	}

	if s.streaming {
		if s.streamed == "" {
			b.WriteString(m.spinner.View() + " " + loadingStyle.Render(s.placeholder) + "\n\n")
		} else {
			b.WriteString(narratorStyle.Render(wordwrap.String(s.streamed, width)) + "\n\n")
		}
		switch {
		case s.waitingLabel != "":
			b.WriteString(m.spinner.View() + " " + loadingStyle.Render(s.waitingLabel) + "\n")
		case s.continueLabel != "":
			b.WriteString(promptStyle.Render("[c] "+s.continueLabel) + "\n")
		}
	}

	if s.errMsg != "" {
		b.WriteString(errorStyle.Render(s.errMsg) + "\n")
		b.WriteString(promptStyle.Render("[r] "+content.Text(m.lang, content.MsgRetry)) + "\n")
	}

	for i, choice := range s.choices {
		line := fmt.Sprintf("%d. %s", i+1, choice)
		if i == m.selected {
			b.WriteString(selectedChoiceStyle.Render("▶ "+line) + "\n")
		} else {
			b.WriteString(choiceStyle.Render("  "+line) + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("Error: "+m.err.Error()) + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + promptStyle.Render(m.status) + "\n")
	}
	return b.String()
}

func (m *ConsoleUI) metaContent() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("PLAYTHROUGH") + "\n\n")

	if m.id == uuid.Nil {
		b.WriteString("Starting...\n")
		return b.String()
	}

	b.WriteString("ID:\n" + m.id.String()[:8] + "...\n\n")
	b.WriteString("Chapter:\n" + m.state.CurrentKeyScene + "\n\n")
	b.WriteString(fmt.Sprintf("AI scenes:\n%d / %d\n\n", m.state.AIGeneratedCount, m.state.MaxAIGenerated))
	b.WriteString("Stats:\n")
	b.WriteString(fmt.Sprintf("• Favor: %d\n", m.state.Stats.Favor))
	b.WriteString(fmt.Sprintf("• Power: %d\n", m.state.Stats.Power))
	b.WriteString(fmt.Sprintf("• Wisdom: %d\n\n", m.state.Stats.Wisdom))
	b.WriteString(fmt.Sprintf("Decisions:\n%d\n\n", len(m.state.History)))

	b.WriteString("Commands:\n")
	b.WriteString("• ↑/↓ Enter: Choose\n")
	b.WriteString("• 1-9: Choose\n")
	b.WriteString("• c: Continue\n")
	b.WriteString("• r: Retry\n")
	b.WriteString("• n: Restart\n")
	b.WriteString("• y: Copy transcript\n")
	b.WriteString("• Ctrl+C: Quit\n")
	return b.String()
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(modalTitleStyle.Render("Quit?"))
	b.WriteString("\n\n")
	b.WriteString("Your playthrough is saved on the server.")
	b.WriteString("\n\n")
	b.WriteString(promptStyle.Render("Press Y to quit, N to keep playing"))

	modal := modalStyle.Width(50).Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	storyWidth := int(float64(m.width)*0.72) - 4
	metaWidth := m.width - storyWidth - 6

	storyPanel := storyPanelStyle.Width(storyWidth).Height(m.height - 1).Render(m.storyViewport.View())
	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 1).Render(m.metaViewport.View())
	return lipgloss.JoinHorizontal(lipgloss.Top, storyPanel, metaPanel)
}
