package runner

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/fateweaver/internal/handlers"
	"github.com/jwebster45206/fateweaver/pkg/engine"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner plays scripted playthroughs against a running fateweaver API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration // Per step; an exchange lasts as long as the workflow does
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	KeepPlaythroughs  bool // Leave playthroughs in storage for inspection
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{},
		Timeout:           3 * time.Minute,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a YAML file
func LoadTestSuite(filename string) (TestSuite, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}
	return jobs, nil
}

// RunSuite plays one suite on a fresh playthrough
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	created, err := CreatePlaythrough(ctx, r.Client, r.BaseURL)
	if err != nil {
		result.Error = fmt.Errorf("failed to create playthrough: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.Playthrough = created.ID

	if !r.KeepPlaythroughs {
		defer func() {
			if err := DeletePlaythrough(context.WithoutCancel(ctx), r.Client, r.BaseURL, created.ID); err != nil {
				r.Logger("    Warning: failed to delete playthrough %s: %v", created.ID, err)
			}
		}()
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, created.ID, step)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}
		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep performs one action and checks its expectations
func (r *Runner) runStep(ctx context.Context, id uuid.UUID, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var resp *ActionResponse
	var err error
	switch step.Action {
	case ActionRead:
		var p *handlers.PlaythroughResponse
		p, err = GetPlaythrough(stepCtx, r.Client, r.BaseURL, id)
		if err == nil {
			resp = &ActionResponse{Status: http.StatusOK, Commands: p.Commands, State: &p.State}
		}
	case handlers.ActionChoose:
		if step.Choice == nil {
			err = fmt.Errorf("step %q needs a choice index", step.Name)
			break
		}
		resp, err = PostAction(stepCtx, r.Client, r.BaseURL, id, step.Action, handlers.ChooseRequest{Index: step.Choice})
	default:
		resp, err = PostAction(stepCtx, r.Client, r.BaseURL, id, step.Action, nil)
	}
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	result.Commands = resp.Commands

	if resp.State == nil && resp.Status == http.StatusOK {
		// A bare action reply carries no state; read it back
		p, err := GetPlaythrough(stepCtx, r.Client, r.BaseURL, id)
		if err != nil {
			result.Error = fmt.Errorf("failed to read playthrough after step: %w", err)
			result.Duration = time.Since(start)
			return result
		}
		resp.State = &p.State
	}

	if err := CheckExpectations(step.Expectations, resp); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// displayText joins everything the player would have read during the step
func displayText(commands []engine.Command) string {
	var b strings.Builder
	for _, c := range commands {
		switch {
		case c.Scene != nil:
			b.WriteString(c.Scene.Text)
		case c.Ending != nil:
			b.WriteString(c.Ending.Title)
			b.WriteString("\n")
			b.WriteString(c.Ending.Text)
		case len(c.Choices) > 0:
			b.WriteString(strings.Join(c.Choices, "\n"))
		default:
			b.WriteString(c.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CheckExpectations validates a step's outcome
func CheckExpectations(exp Expectations, resp *ActionResponse) error {
	wantStatus := http.StatusOK
	if exp.Status != nil {
		wantStatus = *exp.Status
	}
	if resp.Status != wantStatus {
		return fmt.Errorf("expected status %d, got %d: %s", wantStatus, resp.Status, resp.Error)
	}
	if resp.Status != http.StatusOK {
		return nil
	}
	s := resp.State

	if exp.Phase != nil && string(s.Phase) != *exp.Phase {
		return fmt.Errorf("expected phase %s, got %s", *exp.Phase, s.Phase)
	}
	if len(exp.PhaseIn) > 0 && !slices.Contains(exp.PhaseIn, string(s.Phase)) {
		return fmt.Errorf("expected phase in %v, got %s", exp.PhaseIn, s.Phase)
	}
	if exp.CurrentScene != nil && s.CurrentScene != *exp.CurrentScene {
		return fmt.Errorf("expected current_scene %s, got %s", *exp.CurrentScene, s.CurrentScene)
	}
	if exp.CurrentKeyScene != nil && s.CurrentKeyScene != *exp.CurrentKeyScene {
		return fmt.Errorf("expected current_key_scene %s, got %s", *exp.CurrentKeyScene, s.CurrentKeyScene)
	}
	if exp.AIGeneratedCount != nil && s.AIGeneratedCount != *exp.AIGeneratedCount {
		return fmt.Errorf("expected ai_generated_count %d, got %d", *exp.AIGeneratedCount, s.AIGeneratedCount)
	}
	if exp.EndingID != nil && s.EndingID != *exp.EndingID {
		return fmt.Errorf("expected ending_id %q, got %q", *exp.EndingID, s.EndingID)
	}
	if exp.HistoryLength != nil && len(s.History) != *exp.HistoryLength {
		return fmt.Errorf("expected %d history entries, got %d", *exp.HistoryLength, len(s.History))
	}

	for _, want := range exp.Commands {
		if !slices.ContainsFunc(resp.Commands, func(c engine.Command) bool { return string(c.Type) == want }) {
			return fmt.Errorf("expected a %s command, got %v", want, commandTypes(resp.Commands))
		}
	}

	text := displayText(resp.Commands)
	for _, want := range exp.TextContains {
		if !strings.Contains(text, want) {
			return fmt.Errorf("expected rendered text to contain '%s', but it didn't", want)
		}
	}
	for _, unwanted := range exp.TextNotContains {
		if strings.Contains(text, unwanted) {
			return fmt.Errorf("expected rendered text to NOT contain '%s', but it did", unwanted)
		}
	}

	if exp.MinChoices != nil {
		var n int
		for _, c := range resp.Commands {
			if c.Type == engine.CmdRenderChoices {
				n = len(c.Choices)
			}
		}
		if n < *exp.MinChoices {
			return fmt.Errorf("expected at least %d choices, got %d", *exp.MinChoices, n)
		}
	}
	return nil
}

func commandTypes(commands []engine.Command) []string {
	types := make([]string, len(commands))
	for i, c := range commands {
		types[i] = string(c.Type)
	}
	return types
}
