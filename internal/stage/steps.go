package stage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/github"
	"github.com/lucasnoah/healfactory/internal/pipeline"
	"github.com/lucasnoah/healfactory/internal/score"
	"github.com/lucasnoah/healfactory/internal/worktree"
)

func (e *Engine) clone(ctx context.Context, s *pipeline.State) error {
	if s.Status == pipeline.StatusFailed {
		return nil
	}
	repo := worktree.RedactURL(s.RepoURL)
	e.Record(s, EventCloneStarted, fmt.Sprintf("Cloning %s into %s", repo, e.deps.Workspace.Path(s.RunID)), pipeline.EventRunning)

	co, err := e.deps.Workspace.Acquire(ctx, s.RunID, s.RepoURL, s.Credentials.GitHubToken)
	if err != nil {
		msg := "Clone failed: " + worktree.RedactURL(err.Error())
		s.Worktree = ""
		s.Language = pipeline.LangUnknown
		e.Record(s, EventCloneFailed, msg, pipeline.EventFailure)
		s.Fail(msg)
		return nil
	}

	s.Worktree = co.Path
	s.Language = co.Language
	e.Record(s, EventCloneSuccess, "Repository cloned. Detected language: "+co.Language, pipeline.EventSuccess)
	return nil
}

func (e *Engine) analyze(ctx context.Context, s *pipeline.State) error {
	if s.Halted() {
		return nil
	}
	cycle := s.RetryCount + 1
	e.Record(s, EventAnalysisStarted, fmt.Sprintf("Running %s tests and linters (cycle %d)", s.Language, cycle), pipeline.EventRunning)

	a, err := e.deps.Analyzer.Analyze(ctx, s.Worktree, s.Language)
	if err != nil {
		s.Failures = []pipeline.FailureEvent{}
		s.TotalTests, s.TestsPassed = 0, 0
		s.ErrorMessage = "Analysis failed: " + err.Error()
		e.Record(s, EventAnalysisError, s.ErrorMessage, pipeline.EventFailure)
		return nil
	}

	for _, u := range a.Unavailable {
		e.logger.Warn("tool unavailable", zap.String("run_id", s.RunID), zap.String("tool", u.Tool), zap.String("reason", u.Reason))
		e.Record(s, EventToolUnavailable, fmt.Sprintf("%s unavailable: %s", u.Tool, u.Reason), pipeline.EventFailure)
	}
	if e.deps.Outputs != nil {
		for _, r := range a.Results {
			if r == nil || r.Unavailable {
				continue
			}
			_ = e.deps.Outputs.SaveOutput(s.RunID, cycle, r.Tool, r.Output)
		}
	}

	s.Failures = append([]pipeline.FailureEvent{}, a.Failures...)
	s.TotalTests = a.TotalTests
	s.TestsPassed = a.TestsPassed
	if e.deps.Observer != nil {
		e.deps.Observer.FailuresFound(s.Language, s.Failures)
	}

	status := pipeline.EventSuccess
	if len(s.Failures) > 0 {
		status = pipeline.EventFailure
	}
	e.Record(s, EventAnalysisComplete,
		fmt.Sprintf("Found %d failure(s). %d/%d tests passed.", len(s.Failures), s.TestsPassed, s.TotalTests), status)
	return nil
}

func (e *Engine) fix(ctx context.Context, s *pipeline.State) error {
	if s.Halted() || len(s.Failures) == 0 {
		return nil
	}
	n := len(s.Failures)
	e.Record(s, EventFixStarted, fmt.Sprintf("Generating AI fixes for %d failure(s)", n), pipeline.EventRunning)

	fixer := e.deps.NewFixer(s.Credentials.FixerKey)
	fixes := fixer.FixAll(ctx, s.Worktree, s.Language, s.Failures)
	if len(fixes) != n {
		return fmt.Errorf("fixer returned %d records for %d failures", len(fixes), n)
	}
	s.Fixes = fixes
	if e.deps.Observer != nil {
		e.deps.Observer.FixesMade(fixes)
	}

	applied := s.AppliedFixes()
	status := pipeline.EventFailure
	if applied > 0 {
		status = pipeline.EventSuccess
	}
	e.Record(s, EventFixComplete, fmt.Sprintf("Applied %d/%d fix(es) successfully", applied, n), status)
	return nil
}

func (e *Engine) publishFixes(ctx context.Context, s *pipeline.State) error {
	if s.Halted() {
		return nil
	}
	branch := github.BranchName(s.TeamName, s.LeaderName)
	s.BranchName = branch
	e.Record(s, EventGitStarted, "Creating branch: "+branch, pipeline.EventRunning)

	res, err := e.deps.Publisher.Publish(ctx, github.PublishOpts{
		Dir:     s.Worktree,
		RepoURL: s.RepoURL,
		Token:   s.Credentials.GitHubToken,
		Branch:  branch,
		Fixes:   s.Fixes,
	})
	if err != nil {
		e.Record(s, EventGitFailed, "Git operation failed: "+worktree.RedactURL(err.Error()), pipeline.EventFailure)
		return nil
	}
	if res.NothingToCommit {
		e.Record(s, EventGitNothingToCommit, "No file changes to commit", pipeline.EventSuccess)
		return nil
	}

	s.CommitSHA = res.CommitSHA
	e.Record(s, EventGitPushed,
		fmt.Sprintf("Pushed %d fix(es) to branch %s (SHA: %s)", s.AppliedFixes(), branch, shortSHA(res.CommitSHA)), pipeline.EventSuccess)

	e.openPullRequest(ctx, s)
	return nil
}

func (e *Engine) openPullRequest(ctx context.Context, s *pipeline.State) {
	token := s.Credentials.GitHubToken
	if !e.openPR || token == "" || e.deps.NewPRs == nil {
		return
	}
	owner, repo, ok := github.ParseOwnerRepo(s.RepoURL)
	if !ok {
		return
	}

	url, err := func() (string, error) {
		prs, err := e.deps.NewPRs(ctx, token)
		if err != nil {
			return "", err
		}
		return prs.Open(ctx, github.PROpts{
			Owner:  owner,
			Repo:   repo,
			Branch: s.BranchName,
			Base:   e.prBase,
			Title:  fmt.Sprintf("[AI-AGENT] %d automated fix(es)", s.AppliedFixes()),
			Body:   strings.Join(pipeline.FormatFixes(s.Fixes), "\n"),
		})
	}()
	if err != nil {
		e.Record(s, EventPRFailed, "Pull request failed: "+err.Error(), pipeline.EventFailure)
		return
	}
	s.PRURL = url
	e.Record(s, EventPRCreated, "Pull request: "+url, pipeline.EventSuccess)
}

func (e *Engine) verify(ctx context.Context, s *pipeline.State) error {
	if s.Halted() {
		return nil
	}
	token := s.Credentials.GitHubToken
	if token == "" || s.CommitSHA == "" {
		s.CIStatus = SimulatedOutcome(s)
		e.Record(s, EventCISimulated, "No GitHub token or commit – simulated CI result: "+s.CIStatus, s.CIStatus)
		return nil
	}

	owner, repo, ok := github.ParseOwnerRepo(s.RepoURL)
	if !ok {
		s.CIStatus = pipeline.EventPending
		e.Record(s, EventCISkipped, "Could not parse owner/repo from URL", pipeline.EventPending)
		return nil
	}

	e.Record(s, EventCIPollingStarted,
		fmt.Sprintf("Polling GitHub Actions for %s/%s on branch %s", owner, repo, s.BranchName), pipeline.EventRunning)

	ci, err := e.deps.NewCI(ctx, token)
	status := pipeline.EventFailure
	if err == nil {
		status, err = ci.Watch(ctx, owner, repo, s.BranchName, func(event, detail, st string) {
			e.Record(s, event, detail, st)
		})
	}
	if err != nil {
		s.CIStatus = pipeline.EventFailure
		e.Record(s, EventCIError, "CI monitoring error: "+err.Error(), pipeline.EventFailure)
		return nil
	}
	s.CIStatus = status
	return nil
}

// SimulatedOutcome is the CI result assumed when real CI cannot be observed:
// success when nothing failed or at least one fix was applied.
func SimulatedOutcome(s *pipeline.State) string {
	if len(s.Failures) == 0 || s.AppliedFixes() > 0 {
		return pipeline.EventSuccess
	}
	return pipeline.EventFailure
}

// retry starts a new cycle: the counter goes up and the fix list is cleared.
func (e *Engine) retry(s *pipeline.State) error {
	s.RetryCount++
	s.Fixes = []pipeline.FixRecord{}
	e.Record(s, EventRetryScheduled,
		fmt.Sprintf("CI status %s – starting retry %d/%d", s.CIStatus, s.RetryCount, s.RetryLimit), pipeline.EventRunning)
	return nil
}

func (e *Engine) score(s *pipeline.State) error {
	now := e.clock()
	elapsed := now.Sub(s.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b := score.Calculate(score.FromState(s, elapsed))
	s.Score = b
	s.Status = score.Status(s.Status, b)
	s.FinishedAt = now.UTC()

	status := pipeline.EventFailure
	if s.Status == pipeline.StatusSuccess {
		status = pipeline.EventSuccess
	}
	e.Record(s, EventScoreCalculated,
		fmt.Sprintf("Score: %g/110 | Base: %g/100 | Speed Bonus: +%g | Efficiency Penalty: -%g",
			b.TotalScore, b.BaseScore, b.SpeedBonus, b.EfficiencyPenalty), status)
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
