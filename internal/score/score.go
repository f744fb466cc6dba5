// Package score computes the composite quality score of a finished run.
package score

import (
	"math"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

const (
	testsWeight    = 40.0
	fixWeight      = 40.0
	ciBonus        = 20.0
	speedBonus     = 10.0
	speedThreshold = 300.0 // seconds
	freeCommits    = 20
	commitPenalty  = 2.0
	maxTotal       = 110.0

	// SuccessThreshold is the total at or above which a run counts as a success.
	SuccessThreshold = 50.0
)

// Inputs are the run outcome counters the score is computed from.
type Inputs struct {
	TotalTests     int
	TestsPassed    int
	FailureCount   int
	AppliedFixes   int
	CIStatus       string
	ElapsedSeconds float64
	RetryCount     int
}

// FromState collects Inputs from a run state.
func FromState(s *pipeline.State, elapsedSeconds float64) Inputs {
	return Inputs{
		TotalTests:     s.TotalTests,
		TestsPassed:    s.TestsPassed,
		FailureCount:   len(s.Failures),
		AppliedFixes:   s.AppliedFixes(),
		CIStatus:       s.CIStatus,
		ElapsedSeconds: elapsedSeconds,
		RetryCount:     s.RetryCount,
	}
}

// Calculate maps outcome counters to a score breakdown. Every input is valid.
func Calculate(in Inputs) pipeline.ScoreBreakdown {
	var testsPct, testsScore float64
	switch {
	case in.TotalTests > 0:
		ratio := float64(in.TestsPassed) / float64(in.TotalTests)
		testsPct = ratio * 100
		testsScore = ratio * testsWeight
	case in.FailureCount == 0:
		testsPct = 100
		testsScore = testsWeight
	}

	fixQuality := fixWeight
	if in.FailureCount > 0 {
		fixQuality = float64(in.AppliedFixes) / float64(in.FailureCount) * fixWeight
	}

	var ci float64
	if in.CIStatus == pipeline.EventSuccess || (in.FailureCount == 0 && in.TotalTests == 0) {
		ci = ciBonus
	}

	base := testsScore + fixQuality + ci

	var speed float64
	if in.ElapsedSeconds < speedThreshold {
		speed = speedBonus
	}

	penalty := math.Max(0, float64(in.RetryCount+1-freeCommits)*commitPenalty)
	total := math.Min(maxTotal, round(math.Max(0, base+speed-penalty), 2))

	return pipeline.ScoreBreakdown{
		TestsPassedPct:    round(testsPct, 1),
		FixesApplied:      in.AppliedFixes,
		FixQualityScore:   round(fixQuality, 2),
		CISuccessBonus:    ci,
		BaseScore:         round(base, 2),
		SpeedBonus:        speed,
		EfficiencyPenalty: penalty,
		TotalScore:        total,
	}
}

// Status derives the final run status from the score. A failed run stays failed.
func Status(current string, b pipeline.ScoreBreakdown) string {
	if current == pipeline.StatusFailed {
		return pipeline.StatusFailed
	}
	if b.TotalScore >= SuccessThreshold {
		return pipeline.StatusSuccess
	}
	return pipeline.StatusPartial
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
