// Package github publishes fixes to a remote branch and watches the CI run
// the push triggers.
package github

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lucasnoah/healfactory/internal/worktree"
)

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	RunGit(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.CommandContext. Credentials embedded
// in arguments or output are redacted from returned errors.
type ExecGit struct {
	Timeout time.Duration
}

func (g *ExecGit) RunGit(ctx context.Context, dir string, args ...string) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		return worktree.RedactURL(trimmed), fmt.Errorf("git %s: %s: %w",
			worktree.RedactURL(strings.Join(args, " ")), worktree.RedactURL(trimmed), err)
	}
	return trimmed, nil
}
