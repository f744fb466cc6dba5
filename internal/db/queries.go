package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// RunSummary is one row of the runs table without its JSON body.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	RepoURL         string    `json:"repo_url"`
	TeamName        string    `json:"team_name"`
	BranchName      string    `json:"branch_name"`
	Language        string    `json:"language"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	RetryCount      int       `json:"retry_count"`
	FixesApplied    int       `json:"fixes_applied"`
	TotalScore      float64   `json:"total_score"`
	CICDStatus      string    `json:"cicd_status"`
}

// PipelineEvent represents a row in the pipeline_events table.
type PipelineEvent struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Event     string    `json:"event"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

const upsertRun = `
INSERT INTO runs (run_id, repo_url, team_name, leader_name, branch_name, commit_sha, pr_url, language, status,
    started_at, finished_at, duration_seconds, retry_count, retry_limit, total_tests, tests_passed, tests_failed,
    fixes_applied, total_score, cicd_status, error_message, record)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
ON CONFLICT (run_id) DO UPDATE SET
    status = EXCLUDED.status,
    finished_at = EXCLUDED.finished_at,
    duration_seconds = EXCLUDED.duration_seconds,
    retry_count = EXCLUDED.retry_count,
    total_score = EXCLUDED.total_score,
    cicd_status = EXCLUDED.cicd_status,
    error_message = EXCLUDED.error_message,
    record = EXCLUDED.record`

const insertEvent = `INSERT INTO pipeline_events (run_id, event, status, detail, timestamp) VALUES ($1, $2, $3, $4, $5)`

// RecordRun stores a finished run and its timeline in one transaction.
// Re-recording a run replaces its events.
func (d *DB) RecordRun(ctx context.Context, rec *pipeline.RunRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer d.rollback(ctx, tx)

	_, err = tx.Exec(ctx, upsertRun,
		rec.RunID, rec.RepoURL, rec.TeamName, rec.LeaderName, rec.BranchName, rec.CommitSHA, rec.PRURL,
		rec.Language, rec.Status, parseTime(rec.StartedAt), parseTime(rec.FinishedAt), rec.DurationSeconds,
		rec.RetryCount, rec.RetryLimit, rec.TestSummary.TotalTests, rec.TestSummary.TestsPassed,
		rec.TestSummary.TestsFailed, rec.Score.FixesApplied, rec.Score.TotalScore, rec.CICDStatus,
		rec.ErrorMessage, body,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pipeline_events WHERE run_id = $1`, rec.RunID); err != nil {
		return fmt.Errorf("clear events for %s: %w", rec.RunID, err)
	}
	for _, ev := range rec.CICDTimeline {
		if _, err := tx.Exec(ctx, insertEvent, rec.RunID, ev.Event, ev.Status, ev.Detail, parseTime(ev.Timestamp)); err != nil {
			return fmt.Errorf("record event %s: %w", ev.Event, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run %s: %w", rec.RunID, err)
	}
	return nil
}

// LogPipelineEvent inserts a single timeline event for a run.
func (d *DB) LogPipelineEvent(ctx context.Context, runID string, ev pipeline.TimelineEvent) error {
	_, err := d.pool.Exec(ctx, insertEvent, runID, ev.Event, ev.Status, ev.Detail, parseTime(ev.Timestamp))
	if err != nil {
		return fmt.Errorf("log pipeline event: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.pool.Query(ctx,
		`SELECT run_id, repo_url, team_name, branch_name, language, status, started_at,
		        duration_seconds, retry_count, fixes_applied, total_score, cicd_status
		 FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.RepoURL, &r.TeamName, &r.BranchName, &r.Language, &r.Status,
			&r.StartedAt, &r.DurationSeconds, &r.RetryCount, &r.FixesApplied, &r.TotalScore, &r.CICDStatus); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the full stored record for a run, or ErrNotFound.
func (d *DB) GetRun(ctx context.Context, runID string) (*pipeline.RunRecord, error) {
	var body []byte
	err := d.pool.QueryRow(ctx, `SELECT record FROM runs WHERE run_id = $1`, runID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	var rec pipeline.RunRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &rec, nil
}

// RunEvents returns a run's timeline in insertion order.
func (d *DB) RunEvents(ctx context.Context, runID string) ([]PipelineEvent, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, run_id, event, status, detail, timestamp FROM pipeline_events WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []PipelineEvent
	for rows.Next() {
		var e PipelineEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &e.Status, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// parseTime reads a record timestamp; unparseable values become now.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
