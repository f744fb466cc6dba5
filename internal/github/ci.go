package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// EventFunc receives CI timeline events as they happen.
type EventFunc func(event, detail, status string)

// MonitorOpts configure the CI poll loop.
type MonitorOpts struct {
	InitialDelay      time.Duration
	PollInterval      time.Duration
	MaxPolls          int
	RequestsPerSecond float64
}

// Monitor polls GitHub Actions for the latest workflow run on a branch.
type Monitor struct {
	client  *gh.Client
	opts    MonitorOpts
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewMonitor creates a CI monitor.
func NewMonitor(client *gh.Client, opts MonitorOpts) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 60
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Monitor{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepCtx,
	}
}

// Watch waits for the workflow run of branch to complete and returns the CI
// outcome: success, failure, or pending when no run exists. Exhausting the poll
// budget is a failure outcome, not an error. Errors are API or context errors.
func (m *Monitor) Watch(ctx context.Context, owner, repo, branch string, emit EventFunc) (string, error) {
	if emit == nil {
		emit = func(string, string, string) {}
	}
	if err := m.sleep(ctx, m.opts.InitialDelay); err != nil {
		return pipeline.EventFailure, err
	}

	runID, err := m.latestRun(ctx, owner, repo, branch)
	if err != nil {
		return pipeline.EventFailure, err
	}
	if runID == 0 {
		emit("cicd_no_workflow", "No workflow run found – repository may not have GitHub Actions configured", pipeline.EventPending)
		return pipeline.EventPending, nil
	}

	lastStatus := ""
	for i := 0; i < m.opts.MaxPolls; i++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return pipeline.EventFailure, err
		}
		run, _, err := m.client.Actions.GetWorkflowRunByID(ctx, owner, repo, runID)
		if err != nil {
			return pipeline.EventFailure, fmt.Errorf("get workflow run %d: %w", runID, err)
		}
		status, conclusion := run.GetStatus(), run.GetConclusion()

		if status != lastStatus {
			detail := fmt.Sprintf("Workflow run %d – status: %s", runID, status)
			if conclusion != "" {
				detail += ", conclusion: " + conclusion
			}
			emit("cicd_"+status, detail, eventStatus(status, conclusion))
			lastStatus = status
		}

		if status == "completed" {
			if conclusion == "success" {
				return pipeline.EventSuccess, nil
			}
			return pipeline.EventFailure, nil
		}
		if err := m.sleep(ctx, m.opts.PollInterval); err != nil {
			return pipeline.EventFailure, err
		}
	}

	emit("cicd_timeout", fmt.Sprintf("Polling timed out after %s", time.Duration(m.opts.MaxPolls)*m.opts.PollInterval), pipeline.EventFailure)
	return pipeline.EventFailure, nil
}

func (m *Monitor) latestRun(ctx context.Context, owner, repo, branch string) (int64, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	runs, _, err := m.client.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, &gh.ListWorkflowRunsOptions{
		Branch:      branch,
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		return 0, fmt.Errorf("list workflow runs: %w", err)
	}
	if len(runs.WorkflowRuns) == 0 {
		return 0, nil
	}
	return runs.WorkflowRuns[0].GetID(), nil
}

func eventStatus(status, conclusion string) string {
	switch {
	case status == "queued" || status == "in_progress" || status == "waiting" || status == "pending" || status == "requested":
		return pipeline.EventRunning
	case conclusion == "success":
		return pipeline.EventSuccess
	}
	return pipeline.EventFailure
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
