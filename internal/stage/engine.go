// Package stage executes the individual pipeline steps against a run state.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/checks"
	"github.com/lucasnoah/healfactory/internal/github"
	"github.com/lucasnoah/healfactory/internal/pipeline"
	"github.com/lucasnoah/healfactory/internal/worktree"
)

// Step names.
const (
	StepClone   = "clone"
	StepAnalyze = "analyze"
	StepFix     = "fix"
	StepPublish = "publish"
	StepVerify  = "verify"
	StepRetry   = "retry"
	StepScore   = "score"
)

// Timeline events recorded by the steps.
const (
	EventCloneStarted       = "clone_started"
	EventCloneSuccess       = "clone_success"
	EventCloneFailed        = "clone_failed"
	EventAnalysisStarted    = "analysis_started"
	EventAnalysisComplete   = "analysis_complete"
	EventAnalysisError      = "analysis_error"
	EventToolUnavailable    = "analysis_tool_unavailable"
	EventFixStarted         = "fix_started"
	EventFixComplete        = "fix_complete"
	EventGitStarted         = "git_started"
	EventGitNothingToCommit = "git_nothing_to_commit"
	EventGitPushed          = "git_pushed"
	EventGitFailed          = "git_failed"
	EventPRCreated          = "pr_created"
	EventPRFailed           = "pr_failed"
	EventCISimulated        = "cicd_simulated"
	EventCISkipped          = "cicd_skipped"
	EventCIPollingStarted   = "cicd_polling_started"
	EventCIError            = "cicd_error"
	EventRetryScheduled     = "retry_scheduled"
	EventRunCancelled       = "run_cancelled"
	EventStepError          = "step_error"
	EventScoreCalculated    = "score_calculated"
)

// Workspace acquires working trees.
type Workspace interface {
	Path(runID string) string
	Acquire(ctx context.Context, runID, url, token string) (*worktree.Checkout, error)
}

// Analyzer runs the test and lint tools for a language.
type Analyzer interface {
	Analyze(ctx context.Context, dir, language string) (*checks.Analysis, error)
}

// Fixer produces one fix record per failure.
type Fixer interface {
	FixAll(ctx context.Context, root, language string, failures []pipeline.FailureEvent) []pipeline.FixRecord
}

// Publisher commits and pushes the working tree.
type Publisher interface {
	Publish(ctx context.Context, opts github.PublishOpts) (*github.PublishResult, error)
}

// CIWatcher waits for the CI outcome of a branch.
type CIWatcher interface {
	Watch(ctx context.Context, owner, repo, branch string, emit github.EventFunc) (string, error)
}

// PROpener opens or finds a pull request.
type PROpener interface {
	Open(ctx context.Context, opts github.PROpts) (string, error)
}

// OutputSink archives raw tool output per cycle.
type OutputSink interface {
	SaveOutput(runID string, cycle int, tool string, output string) error
}

// Observer receives step outcomes, e.g. for metrics.
type Observer interface {
	StepDone(step string, elapsed time.Duration, failed bool)
	FailuresFound(language string, failures []pipeline.FailureEvent)
	FixesMade(fixes []pipeline.FixRecord)
}

// Deps are the collaborators the steps call out to. NewFixer receives the
// run's fixer key; NewCI and NewPRs receive the run's GitHub token.
type Deps struct {
	Workspace Workspace
	Analyzer  Analyzer
	NewFixer  func(key string) Fixer
	Publisher Publisher
	NewCI     func(ctx context.Context, token string) (CIWatcher, error)
	NewPRs    func(ctx context.Context, token string) (PROpener, error)
	Outputs   OutputSink
	Observer  Observer
}

// errPrecondition marks step errors that leave the run unable to continue.
var errPrecondition = errors.New("precondition violated")

// Engine executes steps. It holds no per-run state; everything a step learns
// is written to the State it is given.
type Engine struct {
	deps     Deps
	clock    pipeline.Clock
	logger   *zap.Logger
	progress io.Writer // live progress output; nil = silent
	publish  func(*pipeline.State)
	openPR   bool
	prBase   string
}

// NewEngine creates a step engine.
func NewEngine(deps Deps, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		deps:   deps,
		clock:  time.Now,
		logger: logger.Named("engine"),
	}
}

// SetClock overrides the time source (for testing).
func (e *Engine) SetClock(c pipeline.Clock) {
	e.clock = c
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// SetPublish registers a callback invoked after every timeline event, so
// observers can see progress inside long steps.
func (e *Engine) SetPublish(fn func(*pipeline.State)) {
	e.publish = fn
}

// SetPullRequests enables opening a pull request after a successful push.
// An empty base targets the repository's default branch.
func (e *Engine) SetPullRequests(enabled bool, base string) {
	e.openPR = enabled
	e.prBase = base
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// logf prints a progress line if a progress writer is configured.
func (e *Engine) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// Record appends a timeline event and publishes the state.
func (e *Engine) Record(s *pipeline.State, event, detail, status string) {
	s.Record(e.clock(), event, detail, status)
	e.logf("[%s] %s", event, detail)
	if e.publish != nil {
		e.publish(s)
	}
}

// Execute runs one step against s. Errors and panics never escape: they are
// recorded as a step_error event, and errors that break a precondition also
// mark the run failed.
func (e *Engine) Execute(ctx context.Context, step string, s *pipeline.State) {
	start := e.clock()
	log := e.logger.With(zap.String("run_id", s.RunID), zap.String("step", step))
	log.Debug("step started")

	err := e.safely(ctx, step, s)
	elapsed := e.clock().Sub(start)
	if err != nil {
		msg := fmt.Sprintf("%s step error: %s", step, worktree.RedactURL(err.Error()))
		log.Error("step failed", zap.String("error", worktree.RedactURL(err.Error())))
		e.Record(s, EventStepError, msg, pipeline.EventFailure)
		if errors.Is(err, errPrecondition) {
			s.Fail(msg)
		}
	} else {
		log.Debug("step finished", zap.Duration("elapsed", elapsed))
	}
	if e.deps.Observer != nil {
		e.deps.Observer.StepDone(step, elapsed, err != nil)
	}
}

func (e *Engine) safely(ctx context.Context, step string, s *pipeline.State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			if step == StepClone && s.Worktree == "" {
				err = fmt.Errorf("%w: %v", errPrecondition, err)
			}
		}
	}()

	switch step {
	case StepClone:
		return e.clone(ctx, s)
	case StepAnalyze:
		return e.analyze(ctx, s)
	case StepFix:
		return e.fix(ctx, s)
	case StepPublish:
		return e.publishFixes(ctx, s)
	case StepVerify:
		return e.verify(ctx, s)
	case StepRetry:
		return e.retry(s)
	case StepScore:
		return e.score(s)
	}
	return fmt.Errorf("unknown step %q", step)
}
