package orchestrator

import (
	"context"
	"testing"

	"github.com/lucasnoah/healfactory/internal/pipeline"
	"github.com/lucasnoah/healfactory/internal/stage"
)

func TestNext_LinearSteps(t *testing.T) {
	tests := []struct {
		step, want string
	}{
		{stage.StepClone, stage.StepAnalyze},
		{stage.StepAnalyze, stage.StepFix},
		{stage.StepFix, stage.StepPublish},
		{stage.StepPublish, stage.StepVerify},
		{stage.StepRetry, stage.StepAnalyze},
		{stage.StepScore, StepEnd},
		{"bogus", StepEnd},
	}
	for _, tt := range tests {
		if got := Next(tt.step, pipeline.StatusRunning, pipeline.EventFailure, 0, 5); got != tt.want {
			t.Errorf("Next(%q) = %q, want %q", tt.step, got, tt.want)
		}
	}
}

func TestNext_AfterVerify(t *testing.T) {
	tests := []struct {
		name           string
		status, ci     string
		retries, limit int
		next           string
	}{
		{"failed run terminates", pipeline.StatusFailed, pipeline.EventFailure, 0, 5, stage.StepScore},
		{"ci success terminates", pipeline.StatusRunning, pipeline.EventSuccess, 0, 5, stage.StepScore},
		{"budget exhausted", pipeline.StatusRunning, pipeline.EventFailure, 5, 5, stage.StepScore},
		{"zero budget", pipeline.StatusRunning, pipeline.EventFailure, 0, 0, stage.StepScore},
		{"ci failure retries", pipeline.StatusRunning, pipeline.EventFailure, 2, 5, stage.StepRetry},
		{"ci pending retries", pipeline.StatusRunning, pipeline.EventPending, 0, 1, stage.StepRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(stage.StepVerify, tt.status, tt.ci, tt.retries, tt.limit); got != tt.next {
				t.Errorf("got %q, want %q", got, tt.next)
			}
		})
	}
}

// scriptedExecutor mimics the step engine: verify reports ciOutcomes in
// order (the last one repeats) and retry increments the counter.
type scriptedExecutor struct {
	ciOutcomes []string
	verifies   int
	steps      []string
	onStep     func(step string)
}

func (e *scriptedExecutor) Execute(ctx context.Context, step string, s *pipeline.State) {
	e.steps = append(e.steps, step)
	if e.onStep != nil {
		e.onStep(step)
	}
	switch step {
	case stage.StepClone:
		s.Worktree = "/tmp/w"
	case stage.StepVerify:
		i := e.verifies
		if i >= len(e.ciOutcomes) {
			i = len(e.ciOutcomes) - 1
		}
		s.CIStatus = e.ciOutcomes[i]
		e.verifies++
	case stage.StepRetry:
		s.RetryCount++
		s.Fixes = []pipeline.FixRecord{}
	case stage.StepScore:
		if s.Status != pipeline.StatusFailed {
			s.Status = pipeline.StatusSuccess
		}
	}
}

func (e *scriptedExecutor) Record(s *pipeline.State, event, detail, status string) {
	s.Timeline = append(s.Timeline, pipeline.TimelineEvent{Event: event, Detail: detail, Status: status})
}

func (e *scriptedExecutor) count(step string) int {
	n := 0
	for _, s := range e.steps {
		if s == step {
			n++
		}
	}
	return n
}

func newRunState(limit int) *pipeline.State {
	return pipeline.NewState("run-1", "https://github.com/o/r", "T", "L", limit, pipeline.Credentials{}, t0)
}

func TestDriver_FirstAttemptSuccess(t *testing.T) {
	exec := &scriptedExecutor{ciOutcomes: []string{pipeline.EventSuccess}}
	s := newRunState(5)
	NewDriver(exec, nil).Run(context.Background(), s)

	want := []string{stage.StepClone, stage.StepAnalyze, stage.StepFix, stage.StepPublish, stage.StepVerify, stage.StepScore}
	if len(exec.steps) != len(want) {
		t.Fatalf("steps = %v, want %v", exec.steps, want)
	}
	for i := range want {
		if exec.steps[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, exec.steps[i], want[i])
		}
	}
	if s.RetryCount != 0 {
		t.Errorf("retry count = %d", s.RetryCount)
	}
}

func TestDriver_AlwaysFailingCIExhaustsBudget(t *testing.T) {
	for _, limit := range []int{0, 1, 3} {
		exec := &scriptedExecutor{ciOutcomes: []string{pipeline.EventFailure}}
		s := newRunState(limit)
		NewDriver(exec, nil).Run(context.Background(), s)

		if s.RetryCount != limit {
			t.Errorf("limit %d: retry count = %d", limit, s.RetryCount)
		}
		if got := exec.count(stage.StepVerify); got != limit+1 {
			t.Errorf("limit %d: verify ran %d times", limit, got)
		}
		if got := exec.count(stage.StepScore); got != 1 {
			t.Errorf("limit %d: score ran %d times", limit, got)
		}
	}
}

func TestDriver_SucceedsOnRetry(t *testing.T) {
	exec := &scriptedExecutor{ciOutcomes: []string{pipeline.EventFailure, pipeline.EventFailure, pipeline.EventSuccess}}
	s := newRunState(5)
	NewDriver(exec, nil).Run(context.Background(), s)

	if s.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", s.RetryCount)
	}
	if exec.count(stage.StepAnalyze) != 3 {
		t.Errorf("analyze ran %d times", exec.count(stage.StepAnalyze))
	}
}

func TestDriver_CancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := &scriptedExecutor{ciOutcomes: []string{pipeline.EventFailure}}
	exec.onStep = func(step string) {
		if step == stage.StepFix {
			cancel()
		}
	}
	s := newRunState(5)
	NewDriver(exec, nil).Run(ctx, s)

	if exec.count(stage.StepPublish) != 0 {
		t.Error("no step may start after cancellation except score")
	}
	if exec.count(stage.StepScore) != 1 {
		t.Errorf("score ran %d times", exec.count(stage.StepScore))
	}
	if s.Status != pipeline.StatusFailed {
		t.Errorf("status = %q", s.Status)
	}
	found := false
	for _, ev := range s.Timeline {
		if ev.Event == stage.EventRunCancelled {
			found = true
		}
	}
	if !found {
		t.Error("expected run_cancelled event")
	}
}

func TestDriver_RunWithoutScoreStillTerminal(t *testing.T) {
	exec := &scriptedExecutor{ciOutcomes: []string{pipeline.EventSuccess}}
	s := newRunState(0)

	d := NewDriver(noScoreExecutor{exec}, nil)
	d.Run(context.Background(), s)
	if s.Status != pipeline.StatusFailed {
		t.Errorf("status = %q, want failed", s.Status)
	}
}

// noScoreExecutor drops the score step, leaving the status running.
type noScoreExecutor struct{ *scriptedExecutor }

func (e noScoreExecutor) Execute(ctx context.Context, step string, s *pipeline.State) {
	if step == stage.StepScore {
		return
	}
	e.scriptedExecutor.Execute(ctx, step, s)
}
