package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

const maxCommitFixLines = 5

// BranchName builds "<TEAM>_<LEADER>_AI_Fix" with both labels uppercased and
// spaces turned into underscores.
func BranchName(team, leader string) string {
	norm := func(s string) string {
		return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_")
	}
	return fmt.Sprintf("%s_%s_AI_Fix", norm(team), norm(leader))
}

// CommitMessage summarizes up to five fixes inline.
func CommitMessage(fixes []pipeline.FixRecord) string {
	if len(fixes) == 0 {
		return "[AI-AGENT] Fix: apply automated code quality improvements"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[AI-AGENT] Fix: %d automated fix(es) applied\n\n", len(fixes))
	for i, f := range fixes {
		if i == maxCommitFixLines {
			break
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  - ")
		b.WriteString(pipeline.FormatFix(f))
	}
	if len(fixes) > maxCommitFixLines {
		fmt.Fprintf(&b, "\n  - ... and %d more fix(es)", len(fixes)-maxCommitFixLines)
	}
	return b.String()
}

// AuthenticatedURL embeds a token into an https GitHub URL for pushing.
// Other URLs are returned unchanged.
func AuthenticatedURL(repoURL, token string) string {
	if token == "" || !strings.Contains(repoURL, "github.com") || !strings.HasPrefix(repoURL, "https://") {
		return repoURL
	}
	return "https://x-access-token:" + token + "@" + strings.TrimPrefix(repoURL, "https://")
}

// Publisher commits the working tree onto the fix branch and pushes it.
type Publisher struct {
	git         GitRunner
	authorName  string
	authorEmail string
}

// NewPublisher creates a publisher committing as the given identity.
func NewPublisher(git GitRunner, authorName, authorEmail string) *Publisher {
	if authorName == "" {
		authorName = "healfactory"
	}
	if authorEmail == "" {
		authorEmail = "healfactory@localhost"
	}
	return &Publisher{git: git, authorName: authorName, authorEmail: authorEmail}
}

// PublishOpts describe one publish.
type PublishOpts struct {
	Dir     string
	RepoURL string
	Token   string
	Branch  string
	Fixes   []pipeline.FixRecord
}

// PublishResult is the outcome of a publish.
type PublishResult struct {
	Branch          string
	CommitSHA       string
	NothingToCommit bool
}

// Publish switches to the fix branch (creating it on the first cycle, reusing
// it with the working tree intact on later ones), commits every change and
// pushes with --force-with-lease, falling back to a plain push.
func (p *Publisher) Publish(ctx context.Context, opts PublishOpts) (*PublishResult, error) {
	if strings.HasPrefix(opts.Branch, "-") || opts.Branch == "" {
		return nil, fmt.Errorf("invalid branch name %q", opts.Branch)
	}
	res := &PublishResult{Branch: opts.Branch}

	_, _ = p.git.RunGit(ctx, opts.Dir, "config", "user.email", p.authorEmail)
	_, _ = p.git.RunGit(ctx, opts.Dir, "config", "user.name", p.authorName)

	if _, err := p.git.RunGit(ctx, opts.Dir, "checkout", "-b", opts.Branch); err != nil {
		if _, err := p.git.RunGit(ctx, opts.Dir, "checkout", opts.Branch); err != nil {
			return nil, fmt.Errorf("checkout branch: %w", err)
		}
	}

	if _, err := p.git.RunGit(ctx, opts.Dir, "add", "-A"); err != nil {
		return nil, fmt.Errorf("stage changes: %w", err)
	}
	status, err := p.git.RunGit(ctx, opts.Dir, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		res.NothingToCommit = true
		return res, nil
	}

	if _, err := p.git.RunGit(ctx, opts.Dir, "commit", "-m", CommitMessage(opts.Fixes)); err != nil {
		return nil, fmt.Errorf("git commit: %w", err)
	}
	sha, err := p.git.RunGit(ctx, opts.Dir, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve commit: %w", err)
	}
	res.CommitSHA = strings.TrimSpace(sha)

	if authed := AuthenticatedURL(opts.RepoURL, opts.Token); authed != opts.RepoURL {
		if _, err := p.git.RunGit(ctx, opts.Dir, "remote", "set-url", "origin", authed); err != nil {
			return res, fmt.Errorf("configure remote: %w", err)
		}
	}

	if _, err := p.git.RunGit(ctx, opts.Dir, "push", "--force-with-lease", "origin", opts.Branch); err != nil {
		if _, err := p.git.RunGit(ctx, opts.Dir, "push", "-u", "origin", opts.Branch); err != nil {
			return res, fmt.Errorf("git push: %w", err)
		}
	}
	return res, nil
}
