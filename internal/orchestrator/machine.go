package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/pipeline"
	"github.com/lucasnoah/healfactory/internal/stage"
)

// StepEnd is the terminal pseudo-step reached after score.
const StepEnd = "end"

// Next is the transition function of the run state machine. It is pure: the
// only branch point is after verify, where a failed run, a successful CI
// outcome or an exhausted retry budget terminate, and anything else retries.
func Next(step, status, ciStatus string, retryCount, retryLimit int) string {
	switch step {
	case stage.StepClone:
		return stage.StepAnalyze
	case stage.StepAnalyze:
		return stage.StepFix
	case stage.StepFix:
		return stage.StepPublish
	case stage.StepPublish:
		return stage.StepVerify
	case stage.StepVerify:
		switch {
		case status == pipeline.StatusFailed:
			return stage.StepScore
		case ciStatus == pipeline.EventSuccess:
			return stage.StepScore
		case retryCount >= retryLimit:
			return stage.StepScore
		}
		return stage.StepRetry
	case stage.StepRetry:
		return stage.StepAnalyze
	}
	return StepEnd
}

// Executor runs a single step against a state.
type Executor interface {
	Execute(ctx context.Context, step string, s *pipeline.State)
	Record(s *pipeline.State, event, detail, status string)
}

// Driver walks a run through the state machine from clone to end.
type Driver struct {
	exec   Executor
	logger *zap.Logger
}

// NewDriver creates a Driver.
func NewDriver(exec Executor, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{exec: exec, logger: logger.Named("driver")}
}

// Run drives s to completion. Cancellation of ctx is observed between steps:
// the run is marked failed and jumps to score, which always runs exactly once.
func (d *Driver) Run(ctx context.Context, s *pipeline.State) {
	log := d.logger.With(zap.String("run_id", s.RunID))
	cancelled := false

	step := stage.StepClone
	for step != StepEnd {
		if !cancelled && step != stage.StepClone && ctx.Err() != nil {
			cancelled = true
			d.exec.Record(s, stage.EventRunCancelled, "Run cancelled before "+step, pipeline.EventFailure)
			s.Fail("run cancelled")
			log.Warn("run cancelled", zap.String("before", step))
			step = stage.StepScore
		}

		stepCtx := ctx
		if step == stage.StepScore {
			stepCtx = context.WithoutCancel(ctx)
		}
		d.exec.Execute(stepCtx, step, s)
		step = Next(step, s.Status, s.CIStatus, s.RetryCount, s.RetryLimit)
	}

	if s.Status == pipeline.StatusRunning {
		s.Fail("run ended without a score")
	}
	log.Info("run finished", zap.String("status", s.Status), zap.Int("retries", s.RetryCount),
		zap.Float64("score", s.Score.TotalScore))
}
