//go:build integration

package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jwebster45206/fateweaver/integration/runner"
)

var caseFlag = flag.String("case", "", "Name of test case to run (from integration/cases/)")
var errFlag = flag.String("err", "continue", "Error handling mode: 'continue' (run all steps) or 'exit' (stop on first failure)")
var runsFlag = flag.Int("runs", 1, "Number of times to run each suite (generated scenes differ between runs)")
var keepFlag = flag.Bool("keep", false, "Keep playthroughs in storage after the run")

func TestMain(m *testing.M) {
	fmt.Printf("Running Fateweaver Integration Tests\n")
	fmt.Printf("   API Base URL: %s\n", apiBaseURL())
	os.Exit(m.Run())
}

func newRunner(mode runner.ErrorHandlingMode) *runner.Runner {
	r := runner.NewRunner(apiBaseURL())
	r.Timeout = time.Duration(getIntEnv("TEST_TIMEOUT_SECONDS", 180)) * time.Second
	r.ErrorHandlingMode = mode
	r.KeepPlaythroughs = *keepFlag
	r.Logger = func(format string, args ...interface{}) {
		fmt.Printf(format+"\n", args...)
	}
	return r
}

func TestIntegrationSuites(t *testing.T) {
	testFiles, err := discoverTestFiles("cases")
	if err != nil {
		t.Fatalf("Failed to discover test files: %v", err)
	}
	if len(testFiles) == 0 {
		t.Fatal("No test files found in cases directory")
	}

	var jobs []runner.TestJob
	for _, file := range testFiles {
		expanded, err := runner.LoadTestSuiteWithExpansion(file, "cases")
		if err != nil {
			t.Errorf("Failed to load test suite %s: %v", file, err)
			continue
		}
		jobs = append(jobs, expanded...)
	}
	if len(jobs) == 0 {
		t.Fatal("No valid test suites loaded")
	}

	stats := runJobs(t, newRunner(runner.ErrorHandlingContinue), jobs, 1)
	t.Log(stats.summary(1))
	if stats.failures > 0 {
		t.Fatalf("Integration tests failed")
	}
}

// TestSingleSuite runs the suites named by -case, comma-separated
func TestSingleSuite(t *testing.T) {
	flag.Parse()
	if *caseFlag == "" {
		t.Skip("Skipping single suite test (use -case flag to run)")
	}
	if *errFlag != "exit" && *errFlag != "continue" {
		t.Fatalf("Invalid -err flag value: %s (must be 'exit' or 'continue')", *errFlag)
	}
	if *runsFlag < 1 {
		t.Fatalf("Number of runs must be >= 1, got: %d", *runsFlag)
	}

	var jobs []runner.TestJob
	for _, name := range strings.Split(*caseFlag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		file := filepath.Join("cases", name)
		if filepath.Ext(file) == "" {
			file += ".yaml"
		}
		expanded, err := runner.LoadTestSuiteWithExpansion(file, "cases")
		if err != nil {
			t.Fatalf("Failed to load test suite %s: %v", file, err)
		}
		jobs = append(jobs, expanded...)
	}

	// Multi-run always continues so the statistics are complete
	mode := runner.ErrorHandlingMode(*errFlag)
	if *runsFlag > 1 {
		mode = runner.ErrorHandlingContinue
	}

	stats := runJobs(t, newRunner(mode), jobs, *runsFlag)
	t.Log(stats.summary(*runsFlag))
	if stats.failures > 0 {
		t.Fatalf("Test suite(s) had errors")
	}
}

type runStats struct {
	passes   int
	failures int
	perSuite map[string]*[2]int // passes, failures
	order    []string
}

func runJobs(t *testing.T, r *runner.Runner, jobs []runner.TestJob, runs int) *runStats {
	t.Helper()
	stats := &runStats{perSuite: make(map[string]*[2]int)}

	for run := 1; run <= runs; run++ {
		if runs > 1 {
			t.Logf("=== RUN %d/%d ===", run, runs)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)

		for i, job := range jobs {
			t.Logf("[%d/%d] Running test suite: %s (%d steps)", i+1, len(jobs), job.Name, len(job.Suite.Steps))
			result, err := r.RunSuite(ctx, job.Suite)
			if err != nil && result.Error == nil {
				result.Error = err
			}
			t.Logf("Playthrough ID: %s", result.Playthrough)

			counts, ok := stats.perSuite[job.Name]
			if !ok {
				counts = &[2]int{}
				stats.perSuite[job.Name] = counts
				stats.order = append(stats.order, job.Name)
			}

			for _, step := range result.Results {
				if step.Success {
					t.Logf("   ✓ %s (%v)", step.StepName, step.Duration)
				} else {
					t.Logf("   ✗ %s: %v", step.StepName, step.Error)
				}
			}

			if result.Error != nil {
				stats.failures++
				counts[1]++
				t.Errorf("[%d/%d] FAILED: Test suite '%s' (run %d): %v", i+1, len(jobs), job.Name, run, result.Error)
				if r.ErrorHandlingMode == runner.ErrorHandlingExit {
					cancel()
					return stats
				}
			} else {
				stats.passes++
				counts[0]++
				t.Logf("[%d/%d] PASSED: Test suite '%s' completed in %v", i+1, len(jobs), job.Name, result.Duration)
			}
			t.Logf("--------------------------------")
		}
		cancel()
	}
	return stats
}

func (s *runStats) summary(runs int) string {
	var sb strings.Builder
	total := s.passes + s.failures
	sb.WriteString("\nIntegration Test Summary:\n")
	fmt.Fprintf(&sb, "   Passed: %d\n", s.passes)
	fmt.Fprintf(&sb, "   Failed: %d\n", s.failures)
	if runs <= 1 || total == 0 {
		return sb.String()
	}

	names := append([]string(nil), s.order...)
	sort.Strings(names)
	sb.WriteString("\nPer-suite statistics:\n")
	for _, name := range names {
		c := s.perSuite[name]
		n := c[0] + c[1]
		fmt.Fprintf(&sb, "  %s: %d/%d passes (%.1f%%)\n", name, c[0], n, float64(c[0])/float64(n)*100)
		if c[0] > 0 && c[1] > 0 {
			sb.WriteString("    ⚠️  FLAKY: This suite both passed and failed across runs\n")
		}
	}
	return sb.String()
}

func discoverTestFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if !info.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func apiBaseURL() string {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func getIntEnv(name string, defaultValue int) int {
	val, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return val
}
