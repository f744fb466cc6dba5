package pipeline

import (
	"fmt"
	"math"
	"time"
)

// RunRecord is the durable result of one run, written once when the run ends.
type RunRecord struct {
	RunID                string          `json:"run_id"`
	RepoURL              string          `json:"repo_url"`
	TeamName             string          `json:"team_name"`
	LeaderName           string          `json:"leader_name"`
	BranchName           string          `json:"branch_name"`
	CommitSHA            string          `json:"commit_sha"`
	PRURL                string          `json:"pr_url"`
	Language             string          `json:"language"`
	Status               string          `json:"status"`
	StartedAt            string          `json:"started_at"`
	FinishedAt           string          `json:"finished_at"`
	DurationSeconds      float64         `json:"duration_seconds"`
	RetryCount           int             `json:"retry_count"`
	RetryLimit           int             `json:"retry_limit"`
	TestSummary          TestSummary     `json:"test_summary"`
	Failures             []FailureEvent  `json:"failures"`
	Fixes                []FixRecord     `json:"fixes"`
	FixesFormattedOutput []string        `json:"fixes_formatted_output"`
	Score                ScoreBreakdown  `json:"score"`
	CICDTimeline         []TimelineEvent `json:"cicd_timeline"`
	CICDStatus           string          `json:"cicd_status"`
	ErrorMessage         *string         `json:"error_message"`
}

// FormatFix renders a fix as "<bug_type> error in <file> line <line> → Fix: <description>".
func FormatFix(f FixRecord) string {
	return fmt.Sprintf("%s error in %s line %d → Fix: %s", f.BugType, f.File, f.Line, f.FixDescription)
}

// FormatFixes renders every fix, one line each.
func FormatFixes(fixes []FixRecord) []string {
	out := make([]string, 0, len(fixes))
	for _, f := range fixes {
		out = append(out, FormatFix(f))
	}
	return out
}

// BuildRecord converts a finished state into its persisted record.
func BuildRecord(s *State) *RunRecord {
	finished := s.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	duration := math.Round(finished.Sub(s.StartedAt).Seconds()*100) / 100
	if duration < 0 {
		duration = 0
	}

	rec := &RunRecord{
		RunID:      s.RunID,
		RepoURL:    s.RepoURL,
		TeamName:   s.TeamName,
		LeaderName: s.LeaderName,
		BranchName: s.BranchName,
		CommitSHA:  s.CommitSHA,
		PRURL:      s.PRURL,
		Language:   s.Language,
		Status:     s.Status,
		StartedAt:  s.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: finished.UTC().Format(time.RFC3339Nano),

		DurationSeconds: duration,
		RetryCount:      s.RetryCount,
		RetryLimit:      s.RetryLimit,
		TestSummary: TestSummary{
			TotalTests:  s.TotalTests,
			TestsPassed: s.TestsPassed,
			TestsFailed: len(s.Failures),
		},
		Failures:             nonNilFailures(s.Failures),
		Fixes:                nonNilFixes(s.Fixes),
		FixesFormattedOutput: FormatFixes(s.Fixes),
		Score:                s.Score,
		CICDTimeline:         append([]TimelineEvent{}, s.Timeline...),
		CICDStatus:           s.CIStatus,
	}
	if s.ErrorMessage != "" {
		msg := s.ErrorMessage
		rec.ErrorMessage = &msg
	}
	return rec
}

func nonNilFailures(in []FailureEvent) []FailureEvent {
	if in == nil {
		return []FailureEvent{}
	}
	return append([]FailureEvent{}, in...)
}

func nonNilFixes(in []FixRecord) []FixRecord {
	if in == nil {
		return []FixRecord{}
	}
	return append([]FixRecord{}, in...)
}
