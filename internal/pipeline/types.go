package pipeline

import "time"

// Bug types assigned to every FailureEvent.
const (
	BugLinting     = "LINTING"
	BugSyntax      = "SYNTAX"
	BugLogic       = "LOGIC"
	BugTypeError   = "TYPE_ERROR"
	BugImport      = "IMPORT"
	BugIndentation = "INDENTATION"
)

// Run statuses carried by State.Status.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPartial = "partial"
)

// Event statuses carried by TimelineEvent.Status and CI outcomes.
const (
	EventSuccess = "success"
	EventFailure = "failure"
	EventPending = "pending"
	EventRunning = "running"
)

// Fix statuses.
const (
	FixApplied = "applied"
	FixFailed  = "failed"
)

// Languages reported by detection.
const (
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangUnknown    = "unknown"
)

// FailureEvent is one classified test or lint failure.
type FailureEvent struct {
	BugType string `json:"bug_type"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Key identifies a failure for deduplication.
func (f FailureEvent) Key() FailureKey {
	return FailureKey{BugType: f.BugType, File: f.File, Line: f.Line}
}

// FailureKey is the dedup identity of a FailureEvent.
type FailureKey struct {
	BugType string
	File    string
	Line    int
}

// FixRecord is the outcome of attempting to fix one FailureEvent.
type FixRecord struct {
	BugType        string `json:"bug_type"`
	File           string `json:"file"`
	Line           int    `json:"line"`
	FixDescription string `json:"fix_description"`
	Patch          string `json:"patch"`
	Status         string `json:"status"` // "applied", "failed"
}

// TimelineEvent is one entry in the append-only run audit trail.
type TimelineEvent struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Detail    string `json:"detail"`
	Status    string `json:"status"` // "success", "failure", "pending", "running"
}

// ScoreBreakdown is the composite score computed at the end of a run.
type ScoreBreakdown struct {
	TestsPassedPct    float64 `json:"tests_passed_pct"`
	FixesApplied      int     `json:"fixes_applied"`
	FixQualityScore   float64 `json:"fix_quality_score"`
	CISuccessBonus    float64 `json:"ci_success_bonus"`
	BaseScore         float64 `json:"base_score"`
	SpeedBonus        float64 `json:"speed_bonus"`
	EfficiencyPenalty float64 `json:"efficiency_penalty"`
	TotalScore        float64 `json:"total_score"`
}

// TestSummary holds the test counters of the latest analysis.
type TestSummary struct {
	TotalTests  int `json:"total_tests"`
	TestsPassed int `json:"tests_passed"`
	TestsFailed int `json:"tests_failed"`
}

// Credentials are supplied per run and never persisted.
type Credentials struct {
	FixerKey    string `json:"-"`
	GitHubToken string `json:"-"`
}

// State is the single aggregate every step reads and extends.
type State struct {
	// Inputs
	RunID       string      `json:"run_id"`
	RepoURL     string      `json:"repo_url"`
	TeamName    string      `json:"team_name"`
	LeaderName  string      `json:"leader_name"`
	RetryLimit  int         `json:"retry_limit"`
	Credentials Credentials `json:"-"`

	// Derived
	Worktree   string `json:"-"`
	Language   string `json:"language"`
	BranchName string `json:"branch_name"`
	CommitSHA  string `json:"commit_sha"`
	PRURL      string `json:"pr_url"`

	// Analysis and fixes
	Failures    []FailureEvent `json:"failures"`
	TotalTests  int            `json:"total_tests"`
	TestsPassed int            `json:"tests_passed"`
	Fixes       []FixRecord    `json:"fixes"`

	// CI and score
	Timeline []TimelineEvent `json:"cicd_timeline"`
	CIStatus string          `json:"cicd_status"`
	Score    ScoreBreakdown  `json:"score"`

	// Control
	RetryCount   int       `json:"retry_count"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewState returns a fresh running state for a run.
func NewState(runID, repoURL, team, leader string, retryLimit int, creds Credentials, now time.Time) *State {
	return &State{
		RunID:       runID,
		RepoURL:     repoURL,
		TeamName:    team,
		LeaderName:  leader,
		RetryLimit:  retryLimit,
		Credentials: creds,
		Language:    LangPython,
		Failures:    []FailureEvent{},
		Fixes:       []FixRecord{},
		Timeline:    []TimelineEvent{},
		CIStatus:    EventPending,
		Status:      StatusRunning,
		StartedAt:   now.UTC(),
	}
}

// Halted reports whether side-effecting steps must be skipped.
func (s *State) Halted() bool {
	return s.Worktree == "" || s.Status == StatusFailed
}

// Fail marks the run failed with the given message.
func (s *State) Fail(msg string) {
	s.Status = StatusFailed
	s.ErrorMessage = msg
}

// AppliedFixes counts fixes with status applied.
func (s *State) AppliedFixes() int {
	n := 0
	for _, f := range s.Fixes {
		if f.Status == FixApplied {
			n++
		}
	}
	return n
}

// Clone returns a copy whose slices can be read without racing the engine.
func (s *State) Clone() *State {
	cp := *s
	cp.Failures = append([]FailureEvent(nil), s.Failures...)
	cp.Fixes = append([]FixRecord(nil), s.Fixes...)
	cp.Timeline = append([]TimelineEvent(nil), s.Timeline...)
	return &cp
}
