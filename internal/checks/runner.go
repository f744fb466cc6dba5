package checks

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// Result holds the structured output of one tool run.
type Result struct {
	Tool        string                  `json:"tool"`
	Command     string                  `json:"command"`
	ExitCode    int                     `json:"exit_code"`
	DurationMs  int                     `json:"duration_ms"`
	Summary     string                  `json:"summary"`
	Failures    []pipeline.FailureEvent `json:"failures"`
	Total       int                     `json:"total"`
	Passed      int                     `json:"passed"`
	Counted     bool                    `json:"counted"`
	Unavailable bool                    `json:"unavailable"`      // tool missing or timed out
	Reason      string                  `json:"reason,omitempty"` // why the tool was unavailable
	Output      string                  `json:"-"`
}

// ParseResult returns the parsed part of r.
func (r *Result) ParseResult() ParseResult {
	return ParseResult{Failures: r.Failures, Total: r.Total, Passed: r.Passed, Counted: r.Counted, Summary: r.Summary}
}

// ToolConfig mirrors config.Tool with the fields the runner needs.
type ToolConfig struct {
	Name    string
	Command string
	Parser  string
	Timeout time.Duration
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.WaitDelay = 2 * time.Second

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner executes tools and parses their output.
type Runner struct {
	cmd CommandRunner
}

// NewRunner creates a Runner with the given command runner.
func NewRunner(cmd CommandRunner) *Runner {
	return &Runner{cmd: cmd}
}

// Run executes a single tool in the given directory. A tool that cannot be started
// or exceeds its timeout yields an empty, Unavailable result rather than an error.
// The only error returned is cancellation of the parent context.
func (r *Runner) Run(ctx context.Context, dir string, cfg ToolConfig) (*Result, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(runCtx, dir, cfg.Command)
	durationMs := int(time.Since(start).Milliseconds())

	result := &Result{
		Tool:       cfg.Name,
		Command:    cfg.Command,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Output:     combine(stdout, stderr),
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.Unavailable = true
		result.ExitCode = -1
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.Reason = fmt.Sprintf("timeout after %s", timeout)
		} else {
			result.Reason = err.Error()
		}
		result.Summary = result.Reason
		return result, nil
	}

	if reason := unavailableReason(stdout, stderr, exitCode); reason != "" {
		result.Unavailable = true
		result.Reason = reason
		result.Summary = reason
		return result, nil
	}

	parsed := ParserFor(cfg.Parser).Parse(stdout, stderr, exitCode)
	result.Failures = parsed.Failures
	result.Total = parsed.Total
	result.Passed = parsed.Passed
	result.Counted = parsed.Counted
	result.Summary = parsed.Summary
	return result, nil
}

// unavailableReason detects a shell that could not find the tool at all.
func unavailableReason(stdout, stderr string, exitCode int) string {
	switch {
	case exitCode == 127:
		return "command not found: " + firstLine(stderr)
	case exitCode != 0 && strings.Contains(stderr, "No module named"):
		return firstLine(stderr)
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
