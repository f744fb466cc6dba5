// Package analytics aggregates stored run history.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// Querier is the subset of the database pool analytics reads through.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LanguageStats summarizes finished runs for one detected language.
type LanguageStats struct {
	Language    string  `json:"language"`
	Runs        int     `json:"runs"`
	Success     int     `json:"success"`
	Partial     int     `json:"partial"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate_pct"`
	MeanScore   float64 `json:"mean_score"`
	MeanRetries float64 `json:"mean_retries"`
	P50Duration float64 `json:"p50_duration_seconds"`
	P95Duration float64 `json:"p95_duration_seconds"`
}

type runRow struct {
	language string
	status   string
	duration float64
	retries  int
	score    float64
}

// QueryLanguageStats returns per-language run statistics for runs started at
// or after since. A zero since covers all history.
func QueryLanguageStats(ctx context.Context, q Querier, since time.Time) ([]LanguageStats, error) {
	rows, err := q.Query(ctx,
		`SELECT language, status, duration_seconds, retry_count, total_score
		 FROM runs WHERE started_at >= $1 AND status != 'running'`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query language stats: %w", err)
	}
	defer rows.Close()

	byLanguage := make(map[string][]runRow)
	for rows.Next() {
		var r runRow
		if err := rows.Scan(&r.language, &r.status, &r.duration, &r.retries, &r.score); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		byLanguage[r.language] = append(byLanguage[r.language], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []LanguageStats
	for lang, runs := range byLanguage {
		results = append(results, summarize(lang, runs))
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Language < results[j].Language
	})
	return results, nil
}

func summarize(lang string, runs []runRow) LanguageStats {
	s := LanguageStats{Language: lang, Runs: len(runs)}
	var durations, scores, retries []float64
	for _, r := range runs {
		switch r.status {
		case pipeline.StatusSuccess:
			s.Success++
		case pipeline.StatusPartial:
			s.Partial++
		default:
			s.Failed++
		}
		durations = append(durations, r.duration)
		scores = append(scores, r.score)
		retries = append(retries, float64(r.retries))
	}
	sort.Float64s(durations)
	s.SuccessRate = pct(s.Success, s.Runs)
	s.MeanScore = avg(scores)
	s.MeanRetries = avg(retries)
	s.P50Duration = percentile(durations, 50)
	s.P95Duration = percentile(durations, 95)
	return s
}

// Overview folds every language into one row labelled "all".
func Overview(stats []LanguageStats) LanguageStats {
	total := LanguageStats{Language: "all"}
	var scoreSum, retrySum float64
	for _, s := range stats {
		total.Runs += s.Runs
		total.Success += s.Success
		total.Partial += s.Partial
		total.Failed += s.Failed
		scoreSum += s.MeanScore * float64(s.Runs)
		retrySum += s.MeanRetries * float64(s.Runs)
	}
	total.SuccessRate = pct(total.Success, total.Runs)
	if total.Runs > 0 {
		total.MeanScore = math.Round(scoreSum/float64(total.Runs)*10) / 10
		total.MeanRetries = math.Round(retrySum/float64(total.Runs)*10) / 10
	}
	return total
}

// BugTypeCount is how often a bug type was extracted across runs.
type BugTypeCount struct {
	BugType string  `json:"bug_type"`
	Count   int     `json:"count"`
	Share   float64 `json:"share_pct"`
}

// QueryBugTypes counts the final failures of stored runs by bug type.
func QueryBugTypes(ctx context.Context, q Querier, since time.Time) ([]BugTypeCount, error) {
	rows, err := q.Query(ctx,
		`SELECT f->>'bug_type' AS bug_type, COUNT(*) AS n
		 FROM runs, jsonb_array_elements(record->'failures') AS f
		 WHERE started_at >= $1
		 GROUP BY bug_type ORDER BY n DESC, bug_type`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query bug types: %w", err)
	}
	defer rows.Close()

	var results []BugTypeCount
	total := 0
	for rows.Next() {
		var b BugTypeCount
		if err := rows.Scan(&b.BugType, &b.Count); err != nil {
			return nil, fmt.Errorf("scan bug type: %w", err)
		}
		total += b.Count
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Share = pct(results[i].Count, total)
	}
	return results, nil
}

// Throughput holds run outcomes for one ISO week.
type Throughput struct {
	Period      string  `json:"period"`
	Runs        int     `json:"runs"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	AvgDuration float64 `json:"avg_duration_seconds"`
}

// QueryThroughput returns run outcomes grouped by week, newest first.
func QueryThroughput(ctx context.Context, q Querier, since time.Time) ([]Throughput, error) {
	rows, err := q.Query(ctx,
		`SELECT to_char(date_trunc('week', started_at), 'IYYY-"W"IW') AS period,
			COUNT(*) AS runs,
			SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END) AS success,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			AVG(duration_seconds) AS avg_duration
		 FROM runs
		 WHERE started_at >= $1
		 GROUP BY period ORDER BY period DESC LIMIT 10`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query throughput: %w", err)
	}
	defer rows.Close()

	var results []Throughput
	for rows.Next() {
		var t Throughput
		if err := rows.Scan(&t.Period, &t.Runs, &t.Success, &t.Failed, &t.AvgDuration); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		t.AvgDuration = math.Round(t.AvgDuration*10) / 10
		results = append(results, t)
	}
	return results, rows.Err()
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
