package checks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// mockCmd records calls and returns results keyed by command.
type mockCmd struct {
	mu      sync.Mutex
	calls   []mockCall
	results map[string]mockResult
}

type mockCall struct {
	Dir     string
	Command string
}

type mockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Block    bool // wait for ctx to end
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Dir: dir, Command: command})
	r := m.results[command]
	m.mu.Unlock()

	if r.Block {
		<-ctx.Done()
		return "", "", -1, fmt.Errorf("exec: %w", ctx.Err())
	}
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

var pyTools = Toolset{
	Test: ToolConfig{Name: "pytest", Command: "pytest", Parser: "pytest", Timeout: time.Second},
	Lint: ToolConfig{Name: "flake8", Command: "flake8", Parser: "flake8", Timeout: time.Second},
}

var jsTools = Toolset{
	Test: ToolConfig{Name: "jest", Command: "npm test", Parser: "jest", Timeout: time.Second},
	Lint: ToolConfig{Name: "eslint", Command: "npx eslint", Parser: "eslint-compact", Timeout: time.Second},
}

func TestRunner_Run_HappyPath(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{
		"pytest": {Stdout: "a.py:3: NameError: name 'x' is not defined\n1 failed, 2 passed", ExitCode: 1},
	}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", pyTools.Test)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Unavailable {
		t.Errorf("expected tool to be available, reason %q", result.Reason)
	}
	if result.Tool != "pytest" {
		t.Errorf("expected tool=pytest, got %q", result.Tool)
	}
	if len(result.Failures) != 1 || result.Failures[0].BugType != pipeline.BugLogic {
		t.Errorf("unexpected failures: %+v", result.Failures)
	}
	if result.Total != 3 || result.Passed != 2 {
		t.Errorf("expected 2/3, got %d/%d", result.Passed, result.Total)
	}
	if len(mock.calls) != 1 || mock.calls[0].Dir != "/tmp/test" {
		t.Errorf("unexpected calls: %+v", mock.calls)
	}
}

func TestRunner_Run_CommandNotFound(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{
		"flake8": {Stderr: "sh: 1: flake8: not found", ExitCode: 127},
	}}
	result, err := NewRunner(mock).Run(context.Background(), "/tmp", pyTools.Lint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Unavailable {
		t.Fatal("expected unavailable result")
	}
	if !strings.Contains(result.Reason, "command not found") {
		t.Errorf("unexpected reason %q", result.Reason)
	}
	if len(result.Failures) != 0 {
		t.Error("unavailable tool must contribute no failures")
	}
}

func TestRunner_Run_MissingPythonModule(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{
		"pytest": {Stderr: "/usr/bin/python: No module named pytest", ExitCode: 1},
	}}
	result, err := NewRunner(mock).Run(context.Background(), "/tmp", pyTools.Test)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Unavailable {
		t.Error("expected unavailable result")
	}
}

func TestRunner_Run_Timeout(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{"slow": {Block: true}}}
	cfg := ToolConfig{Name: "slow", Command: "slow", Timeout: 20 * time.Millisecond}

	result, err := NewRunner(mock).Run(context.Background(), "/tmp", cfg)
	if err != nil {
		t.Fatalf("timeout must degrade, not error: %v", err)
	}
	if !result.Unavailable || !strings.Contains(result.Reason, "timeout") {
		t.Errorf("expected timeout reason, got %+v", result)
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit code -1, got %d", result.ExitCode)
	}
}

func TestRunner_Run_ParentCancelled(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{"slow": {Block: true}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(mock).Run(ctx, "/tmp", ToolConfig{Name: "slow", Command: "slow", Timeout: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunner_Run_ExecError(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{"x": {Err: errors.New("exec: fork failed")}}}
	result, err := NewRunner(mock).Run(context.Background(), "/tmp", ToolConfig{Name: "x", Command: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Unavailable || result.Reason != "exec: fork failed" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestAnalyze_PythonMergesAndDedupes(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{
		"pytest": {Stdout: "app.py:1: ImportError: cannot import name 'x'\napp.py:1: ImportError: again\n1 failed, 3 passed", ExitCode: 1},
		"flake8": {Stdout: "./app.py:1:1: F401 'os' imported but unused\n./app.py:1:5: F811 redefinition", ExitCode: 1},
	}}
	runner := NewRunner(mock)
	plan := PlanFor("/repo", pipeline.LangPython, pyTools)

	a, err := runner.Analyze(context.Background(), "/repo", plan)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(mock.calls) != 2 {
		t.Fatalf("expected both tools to run, got %d calls", len(mock.calls))
	}
	if len(a.Failures) != 2 {
		t.Fatalf("expected 2 deduped failures, got %d: %+v", len(a.Failures), a.Failures)
	}
	if a.Failures[0].BugType != pipeline.BugImport || a.Failures[0].Message != "cannot import name 'x'" {
		t.Errorf("first occurrence must win, got %+v", a.Failures[0])
	}
	if a.Failures[1].BugType != pipeline.BugLinting {
		t.Errorf("lint failure should follow test failures, got %+v", a.Failures[1])
	}
	if a.TotalTests != 4 || a.TestsPassed != 3 {
		t.Errorf("expected 3/4, got %d/%d", a.TestsPassed, a.TotalTests)
	}
}

func TestAnalyze_DegradedToolIsObservable(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{
		"pytest": {Stdout: "2 passed", ExitCode: 0},
		"flake8": {Stderr: "flake8: not found", ExitCode: 127},
	}}
	a, err := NewRunner(mock).Analyze(context.Background(), "/repo", PlanFor("/repo", pipeline.LangPython, pyTools))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Unavailable) != 1 || a.Unavailable[0].Tool != "flake8" {
		t.Errorf("expected flake8 reported unavailable, got %+v", a.Unavailable)
	}
	if len(a.Failures) != 0 {
		t.Errorf("expected no failures, got %+v", a.Failures)
	}
}

func TestAnalyze_RelativizesAbsolutePaths(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "src", "index.js")
	mock := &mockCmd{results: map[string]mockResult{
		"npx eslint": {Stdout: abs + ": line 2, col 1, Error - 'a' is not defined. (no-undef)", ExitCode: 1},
	}}
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte(`{"name":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	plan := PlanFor(root, pipeline.LangJavaScript, jsTools)
	a, err := NewRunner(mock).Analyze(context.Background(), root, plan)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Failures) != 1 || a.Failures[0].File != "src/index.js" {
		t.Errorf("expected repo-relative path, got %+v", a.Failures)
	}
}

func TestPlanFor_JavaScript(t *testing.T) {
	t.Run("no package.json", func(t *testing.T) {
		plan := PlanFor(t.TempDir(), pipeline.LangJavaScript, jsTools)
		if len(plan.Tools) != 0 {
			t.Errorf("expected no tools, got %+v", plan.Tools)
		}
		if len(plan.Skipped) != 1 {
			t.Errorf("expected the test tool to be reported skipped")
		}
	})

	t.Run("package.json without test script", func(t *testing.T) {
		dir := t.TempDir()
		os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"scripts":{"build":"tsc"}}`), 0o644)
		plan := PlanFor(dir, pipeline.LangTypeScript, jsTools)
		if len(plan.Tools) != 1 || plan.Tools[0].Name != "eslint" {
			t.Errorf("expected only eslint, got %+v", plan.Tools)
		}
	})

	t.Run("package.json with test script", func(t *testing.T) {
		dir := t.TempDir()
		os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"scripts":{"test":"jest"}}`), 0o644)
		plan := PlanFor(dir, pipeline.LangJavaScript, jsTools)
		if len(plan.Tools) != 2 || plan.Tools[0].Name != "jest" {
			t.Errorf("expected jest then eslint, got %+v", plan.Tools)
		}
	})

	t.Run("invalid package.json", func(t *testing.T) {
		dir := t.TempDir()
		os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{nope`), 0o644)
		plan := PlanFor(dir, pipeline.LangJavaScript, jsTools)
		if len(plan.Tools) != 1 || len(plan.Skipped) != 1 {
			t.Errorf("expected lint only with one skip, got %+v", plan)
		}
	})
}

func TestSuite_SelectsToolsetByLanguage(t *testing.T) {
	mock := &mockCmd{results: map[string]mockResult{
		"pytest": {Stdout: "1 passed"},
		"flake8": {},
	}}
	suite := NewSuite(NewRunner(mock), pyTools, jsTools)

	if _, err := suite.Analyze(context.Background(), t.TempDir(), pipeline.LangUnknown); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(mock.calls) != 2 {
		t.Fatalf("expected python tools for unknown language, got %+v", mock.calls)
	}

	mock.calls = nil
	a, err := suite.Analyze(context.Background(), t.TempDir(), pipeline.LangTypeScript)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(mock.calls) != 0 {
		t.Errorf("expected no tools without package.json, got %+v", mock.calls)
	}
	if len(a.Unavailable) != 1 {
		t.Errorf("expected skipped test tool to be reported, got %+v", a.Unavailable)
	}
}
