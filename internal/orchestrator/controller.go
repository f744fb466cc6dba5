// Package orchestrator drives runs through the step state machine and owns
// the single run slot behind the front door.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/pipeline"
	"github.com/lucasnoah/healfactory/internal/worktree"
)

// Front door errors.
var (
	ErrBusy       = errors.New("pipeline is already running, wait for it to complete")
	ErrNoResult   = errors.New("no results available yet, run the agent first")
	ErrNotRunning = errors.New("no pipeline is running")
)

// Run slot phases reported by Status. Finished runs report their run status.
const (
	PhaseIdle    = "idle"
	PhaseQueued  = "queued"
	PhaseRunning = "running"
)

// InvalidRequestError reports a trigger request that cannot start a run.
type InvalidRequestError struct {
	Field   string
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TriggerRequest starts a run. Empty fields take the configured defaults.
type TriggerRequest struct {
	RepoURL     string
	TeamName    string
	LeaderName  string
	FixerKey    string
	GitHubToken string
	RetryLimit  *int
}

// Ack is returned by a successful trigger.
type Ack struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Status is the current state of the run slot.
type Status struct {
	Status    string `json:"status"`
	RunID     string `json:"run_id,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	Message   string `json:"message"`
}

// Timeline is the status plus ordered events of the current or last run.
type Timeline struct {
	Status   string                   `json:"status"`
	Timeline []pipeline.TimelineEvent `json:"timeline"`
}

// Defaults fill in trigger fields the caller leaves empty.
type Defaults struct {
	TeamName      string
	LeaderName    string
	RetryLimit    int
	MaxRetryLimit int
	FixerKey      string
	GitHubToken   string
}

// ResultStore persists finished run records.
type ResultStore interface {
	Save(rec *pipeline.RunRecord) error
	Latest() (*pipeline.RunRecord, error)
}

// History receives finished runs, e.g. a database. Optional.
type History interface {
	RecordRun(ctx context.Context, rec *pipeline.RunRecord) error
}

// EventLog receives each timeline event of the in-flight run as it is
// recorded. Optional.
type EventLog interface {
	LogPipelineEvent(ctx context.Context, runID string, ev pipeline.TimelineEvent) error
}

// Cleaner removes a run's working tree.
type Cleaner interface {
	Remove(path string) error
}

// RunObserver is told about run starts and finishes, e.g. for metrics.
type RunObserver interface {
	RunStarted()
	RunFinished(rec *pipeline.RunRecord)
}

// Runner drives one run to completion.
type Runner interface {
	Run(ctx context.Context, s *pipeline.State)
}

// Controller holds the single run slot. The mutex guards only the slot's
// fields; runs execute outside it on their own goroutine.
type Controller struct {
	runner   Runner
	store    ResultStore
	history  History
	events   EventLog
	cleaner  Cleaner
	observer RunObserver
	defaults Defaults
	logger   *zap.Logger
	clock    pipeline.Clock
	newID    func() string

	mu        sync.Mutex
	inflight  bool
	phase     string
	runID     string
	startedAt time.Time
	message   string
	snapshot  *pipeline.State
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewController creates a Controller.
func NewController(runner Runner, store ResultStore, defaults Defaults, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.RetryLimit <= 0 {
		defaults.RetryLimit = 5
	}
	if defaults.MaxRetryLimit <= 0 {
		defaults.MaxRetryLimit = 20
	}
	return &Controller{
		runner:   runner,
		store:    store,
		defaults: defaults,
		logger:   logger.Named("controller"),
		clock:    time.Now,
		newID:    func() string { return uuid.New().String() },
		phase:    PhaseIdle,
	}
}

// SetHistory sets an optional run history sink.
func (c *Controller) SetHistory(h History) { c.history = h }

// SetEventLog sets an optional sink for live timeline events.
func (c *Controller) SetEventLog(l EventLog) { c.events = l }

// SetCleaner sets the working tree cleaner used when a run finishes.
func (c *Controller) SetCleaner(cl Cleaner) { c.cleaner = cl }

// SetObserver sets the run observer.
func (c *Controller) SetObserver(o RunObserver) { c.observer = o }

// SetClock overrides the time source (for testing).
func (c *Controller) SetClock(clock pipeline.Clock) { c.clock = clock }

// Trigger validates req and starts a run in the background. It returns
// ErrBusy while another run is in flight and never blocks on the run.
func (c *Controller) Trigger(req TriggerRequest) (*Ack, error) {
	s, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel, err := c.claim(context.Background(), s)
	if err != nil {
		return nil, err
	}

	c.logger.Info("run queued", zap.String("run_id", s.RunID), zap.String("repo", worktree.RedactURL(s.RepoURL)))
	go c.execute(ctx, cancel, s)

	return &Ack{RunID: s.RunID, Status: PhaseQueued, Message: "Pipeline started successfully"}, nil
}

// claim takes the run slot for s.
func (c *Controller) claim(parent context.Context, s *pipeline.State) (context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight {
		return nil, nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(parent)
	c.inflight = true
	c.phase = PhaseQueued
	c.runID = s.RunID
	c.startedAt = s.StartedAt
	c.message = ""
	c.snapshot = s.Clone()
	c.cancel = cancel
	c.wg.Add(1)
	return ctx, cancel, nil
}

func (c *Controller) prepare(req TriggerRequest) (*pipeline.State, error) {
	repo := strings.TrimSpace(req.RepoURL)
	if repo == "" {
		return nil, &InvalidRequestError{Field: "repo_url", Message: "is required"}
	}
	limit := c.defaults.RetryLimit
	if req.RetryLimit != nil {
		limit = *req.RetryLimit
	}
	if limit < 0 || limit > c.defaults.MaxRetryLimit {
		return nil, &InvalidRequestError{
			Field:   "retry_limit",
			Message: fmt.Sprintf("must be between 0 and %d", c.defaults.MaxRetryLimit),
		}
	}

	creds := pipeline.Credentials{
		FixerKey:    firstNonEmpty(req.FixerKey, c.defaults.FixerKey),
		GitHubToken: firstNonEmpty(req.GitHubToken, c.defaults.GitHubToken),
	}
	return pipeline.NewState(c.newID(), repo,
		firstNonEmpty(req.TeamName, c.defaults.TeamName),
		firstNonEmpty(req.LeaderName, c.defaults.LeaderName),
		limit, creds, c.clock()), nil
}

// RunSync executes a run on the calling goroutine and returns its record.
// It shares the run slot with Trigger.
func (c *Controller) RunSync(ctx context.Context, req TriggerRequest) (*pipeline.RunRecord, error) {
	s, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel, err := c.claim(ctx, s)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, cancel, s), nil
}

func (c *Controller) execute(ctx context.Context, cancel context.CancelFunc, s *pipeline.State) *pipeline.RunRecord {
	defer c.wg.Done()
	defer cancel()

	c.mu.Lock()
	if c.runID == s.RunID {
		c.phase = PhaseRunning
	}
	c.mu.Unlock()
	if c.observer != nil {
		c.observer.RunStarted()
	}

	c.runner.Run(ctx, s)

	if c.cleaner != nil && s.Worktree != "" {
		if err := c.cleaner.Remove(s.Worktree); err != nil {
			c.logger.Warn("workspace cleanup failed", zap.String("run_id", s.RunID), zap.Error(err))
		}
	}

	rec := pipeline.BuildRecord(s)
	if err := c.store.Save(rec); err != nil {
		c.logger.Error("save run record", zap.String("run_id", s.RunID), zap.Error(err))
	}
	if c.history != nil {
		hctx, hcancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.history.RecordRun(hctx, rec); err != nil {
			c.logger.Warn("record run history", zap.String("run_id", s.RunID), zap.Error(err))
		}
		hcancel()
	}
	if c.observer != nil {
		c.observer.RunFinished(rec)
	}

	c.mu.Lock()
	c.inflight = false
	c.cancel = nil
	if c.runID == s.RunID {
		c.phase = s.Status
		c.message = s.ErrorMessage
		c.snapshot = s.Clone()
	}
	c.mu.Unlock()
	return rec
}

// Publish replaces the status snapshot with a copy of s and forwards its
// newest event to the event log. Snapshots of a run that has been reset away
// are dropped.
func (c *Controller) Publish(s *pipeline.State) {
	cp := s.Clone()
	c.mu.Lock()
	current := c.runID == s.RunID && c.inflight
	if current {
		c.snapshot = cp
	}
	c.mu.Unlock()

	if !current || c.events == nil {
		return
	}
	ev, ok := cp.LastEvent()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.events.LogPipelineEvent(ctx, cp.RunID, ev); err != nil {
		c.logger.Warn("log pipeline event", zap.String("run_id", cp.RunID), zap.String("event", ev.Event), zap.Error(err))
	}
}

// Status returns the current run slot state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{Status: c.phase, RunID: c.runID, Message: c.message}
	if !c.startedAt.IsZero() {
		st.StartedAt = c.startedAt.UTC().Format(time.RFC3339Nano)
	}
	if st.Message == "" {
		st.Message = "Pipeline is " + c.phase
	}
	return st
}

// Timeline returns the event log of the current or last run.
func (c *Controller) Timeline() Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()

	tl := Timeline{Status: c.phase, Timeline: []pipeline.TimelineEvent{}}
	if c.snapshot != nil {
		tl.Timeline = append(tl.Timeline, c.snapshot.Timeline...)
	}
	return tl
}

// Result returns the persisted record of the latest finished run.
func (c *Controller) Result() (*pipeline.RunRecord, error) {
	rec, err := c.store.Latest()
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, fmt.Errorf("load latest result: %w", err)
	}
	return rec, nil
}

// Cancel cancels the in-flight run. The run still records a score.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inflight || c.cancel == nil {
		return ErrNotRunning
	}
	c.cancel()
	c.logger.Info("run cancel requested", zap.String("run_id", c.runID))
	return nil
}

// Reset cancels any in-flight run and returns the slot to idle. The persisted
// last-run record is left untouched.
func (c *Controller) Reset() Status {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.phase = PhaseIdle
	c.runID = ""
	c.startedAt = time.Time{}
	c.message = ""
	c.snapshot = nil
	c.mu.Unlock()

	return Status{Status: PhaseIdle, Message: "Pipeline reset successfully"}
}

// Wait blocks until every started run has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown cancels the in-flight run and waits for it, or for ctx.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
