// Package worktree acquires working trees for runs: clone, language
// detection and cleanup.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// Cloner fetches a repository into dir. Interface for testing.
type Cloner interface {
	Clone(ctx context.Context, url, dir, token string) error
}

// GoGitCloner implements Cloner with go-git.
type GoGitCloner struct {
	Depth int // 0 clones full history
}

// NewGoGitCloner returns a shallow cloner.
func NewGoGitCloner() *GoGitCloner {
	return &GoGitCloner{Depth: 1}
}

func (c *GoGitCloner) Clone(ctx context.Context, url, dir, token string) error {
	opts := &git.CloneOptions{
		URL:          url,
		Depth:        c.Depth,
		SingleBranch: true,
	}
	if token != "" && strings.Contains(url, "github.com") && strings.HasPrefix(url, "https://") {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("git clone %s: %w", RedactURL(url), err)
	}
	return nil
}

// Manager creates and removes per-run working trees under baseDir.
type Manager struct {
	cloner  Cloner
	baseDir string
}

// NewManager creates a worktree manager.
func NewManager(cloner Cloner, baseDir string) *Manager {
	return &Manager{cloner: cloner, baseDir: baseDir}
}

// Checkout is an acquired working tree.
type Checkout struct {
	Path     string
	Language string
	Branch   string // branch checked out by the clone, if known
}

var unsafeRunID = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Path returns the working tree path for a run.
func (m *Manager) Path(runID string) string {
	name := unsafeRunID.ReplaceAllString(runID, "-")
	return filepath.Join(m.baseDir, "run-"+name)
}

// Acquire clones url into the run's directory and detects its language.
// Any leftover directory from an earlier attempt is removed first, and a
// failed clone leaves nothing behind.
func (m *Manager) Acquire(ctx context.Context, runID, url, token string) (*Checkout, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("repository url is required")
	}
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	dir := m.Path(runID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear workspace: %w", err)
	}

	if err := m.cloner.Clone(ctx, url, dir, token); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("clone directory %s was not created", dir)
	}

	return &Checkout{
		Path:     dir,
		Language: DetectLanguage(dir),
		Branch:   CurrentBranch(dir),
	}, nil
}

// Remove deletes a working tree. Paths outside baseDir are refused.
func (m *Manager) Remove(path string) error {
	if path == "" {
		return nil
	}
	rel, err := filepath.Rel(m.baseDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s: not inside %s", path, m.baseDir)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}
	return nil
}

// LanguageCounts holds source file counts per language.
type LanguageCounts struct {
	Python     int
	TypeScript int
	JavaScript int
}

// CountSources counts source files under dir, skipping .git and node_modules.
func CountSources(dir string) LanguageCounts {
	var c LanguageCounts
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(d.Name()) {
		case ".py":
			c.Python++
		case ".ts", ".tsx":
			c.TypeScript++
		case ".js", ".jsx":
			c.JavaScript++
		}
		return nil
	})
	return c
}

// DetectLanguage picks the dominant language. Any TypeScript at least as
// common as JavaScript wins, then Python wins ties with JavaScript, and an
// empty tree is javascript.
func DetectLanguage(dir string) string {
	c := CountSources(dir)
	switch {
	case c.TypeScript > 0 && c.TypeScript >= c.JavaScript:
		return pipeline.LangTypeScript
	case c.Python > 0 && c.Python >= c.JavaScript && c.Python >= c.TypeScript:
		return pipeline.LangPython
	}
	return pipeline.LangJavaScript
}

// CurrentBranch returns the checked-out branch of the repository at dir, or
// "" when it is not a repository or HEAD is detached.
func CurrentBranch(dir string) string {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return ""
}

var credentialsRe = regexp.MustCompile(`://[^/@]+@`)

// RedactURL strips embedded credentials from a URL so it can be logged.
func RedactURL(url string) string {
	return credentialsRe.ReplaceAllString(url, "://***@")
}
