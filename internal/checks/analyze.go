package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// Toolset is the test and lint tool configured for one language family.
type Toolset struct {
	Test ToolConfig
	Lint ToolConfig
}

// Plan lists the tools to run for a working tree, plus tools skipped with a reason.
type Plan struct {
	Tools   []ToolConfig
	Skipped []Result
}

// PlanFor decides which tools apply to dir. Python always runs both tools;
// JavaScript and TypeScript run tests only when package.json declares a test
// script and lint only when package.json exists.
func PlanFor(dir, language string, tools Toolset) Plan {
	if language == pipeline.LangPython {
		return Plan{Tools: []ToolConfig{tools.Test, tools.Lint}}
	}

	var plan Plan
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		plan.Skipped = append(plan.Skipped, Result{
			Tool: tools.Test.Name, Unavailable: true,
			Reason: "no package.json found, skipping JavaScript tests",
		})
		return plan
	}

	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	switch {
	case json.Unmarshal(data, &pkg) != nil:
		plan.Skipped = append(plan.Skipped, Result{
			Tool: tools.Test.Name, Unavailable: true,
			Reason: "package.json is not valid JSON",
		})
	case pkg.Scripts["test"] == "":
		plan.Skipped = append(plan.Skipped, Result{
			Tool: tools.Test.Name, Unavailable: true,
			Reason: "no test script found in package.json",
		})
	default:
		plan.Tools = append(plan.Tools, tools.Test)
	}
	plan.Tools = append(plan.Tools, tools.Lint)
	return plan
}

// Analysis is the merged outcome of every tool run for one analyze step.
type Analysis struct {
	Failures    []pipeline.FailureEvent
	TotalTests  int
	TestsPassed int
	Results     []*Result
	Unavailable []Result
}

// Analyze runs the planned tools concurrently and merges their failures in plan
// order, so test failures always precede lint failures before deduplication.
func (r *Runner) Analyze(ctx context.Context, dir string, plan Plan) (*Analysis, error) {
	results := make([]*Result, len(plan.Tools))

	g, gctx := errgroup.WithContext(ctx)
	for i, tool := range plan.Tools {
		g.Go(func() error {
			res, err := r.Run(gctx, dir, tool)
			if err != nil {
				return fmt.Errorf("run %s: %w", tool.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := &Analysis{Results: results, Unavailable: append([]Result{}, plan.Skipped...)}
	var parsed []ParseResult
	for _, res := range results {
		if res.Unavailable {
			a.Unavailable = append(a.Unavailable, *res)
			continue
		}
		parsed = append(parsed, res.ParseResult())
	}
	ex := Merge(dir, parsed)
	a.Failures, a.TotalTests, a.TestsPassed = ex.Failures, ex.TotalTests, ex.TestsPassed
	return a, nil
}

// relativize turns absolute paths inside root into repo-relative ones.
func relativize(root, file string) string {
	if file == UnknownFile || !filepath.IsAbs(file) {
		return file
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return filepath.ToSlash(rel)
}
