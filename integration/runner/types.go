package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/fateweaver/pkg/engine"
)

// Step actions besides the API's own choices/continue/retry/restart
const (
	ActionRead = "read" // GET the playthrough; checks the redraw commands
)

// TestSuite defines a complete playthrough scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string     `yaml:"name"`
	Steps []TestStep `yaml:"steps,omitempty"` // Used for regular tests
	Cases []string   `yaml:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one player action and its expected outcome
type TestStep struct {
	Name         string       `yaml:"name,omitempty"`
	Action       string       `yaml:"action"`           // choices, continue, retry, restart or read
	Choice       *int         `yaml:"choice,omitempty"` // 0-based index for choices
	Expectations Expectations `yaml:"expect"`
}

// Expectations defines what to check after a step executes
type Expectations struct {
	Status *int `yaml:"status,omitempty"` // HTTP status of the action, 200 when omitted

	// Playthrough state, aligned with pkg/engine/state.go
	Phase            *string  `yaml:"phase,omitempty"`
	PhaseIn          []string `yaml:"phase_in,omitempty"` // Any of these phases
	CurrentScene     *string  `yaml:"current_scene,omitempty"`
	CurrentKeyScene  *string  `yaml:"current_key_scene,omitempty"`
	AIGeneratedCount *int     `yaml:"ai_generated_count,omitempty"`
	EndingID         *string  `yaml:"ending_id,omitempty"`
	HistoryLength    *int     `yaml:"history_length,omitempty"`

	// Render commands received for the step
	Commands        []string `yaml:"commands,omitempty"`          // Command types that must appear
	TextContains    []string `yaml:"text_contains,omitempty"`     // Substrings of the rendered text
	TextNotContains []string `yaml:"text_not_contains,omitempty"` // e.g. raw JSON leaking into the display
	MinChoices      *int     `yaml:"min_choices,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName string
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
	Commands []engine.Command
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job         TestJob
	Results     []TestResult
	Error       error
	Duration    time.Duration
	Playthrough uuid.UUID // ID of the playthrough used for this test
}
