package checks

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

func TestDedupe_FirstOccurrenceWins(t *testing.T) {
	in := []pipeline.FailureEvent{
		{BugType: pipeline.BugLogic, File: "a.py", Line: 1, Message: "first"},
		{BugType: pipeline.BugLinting, File: "a.py", Line: 1, Message: "different type"},
		{BugType: pipeline.BugLogic, File: "a.py", Line: 1, Message: "second"},
		{BugType: pipeline.BugLogic, File: "a.py", Line: 2, Message: "other line"},
	}
	want := []pipeline.FailureEvent{in[0], in[1], in[3]}
	if diff := cmp.Diff(want, Dedupe(in)); diff != "" {
		t.Errorf("Dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupe_NeverDuplicateKeys(t *testing.T) {
	var in []pipeline.FailureEvent
	for i := 0; i < 50; i++ {
		in = append(in, pipeline.FailureEvent{BugType: pipeline.BugLinting, File: "f.py", Line: i % 7})
	}
	out := Dedupe(in)
	seen := map[pipeline.FailureKey]bool{}
	for _, f := range out {
		if seen[f.Key()] {
			t.Fatalf("duplicate key %+v", f.Key())
		}
		seen[f.Key()] = true
	}
	if len(out) != 7 {
		t.Errorf("expected 7 unique failures, got %d", len(out))
	}
}

func TestExtract_Python(t *testing.T) {
	test := "x.py:4: TypeError: unsupported operand\n1 failed, 1 passed"
	lint := "x.py:4:1: E111 indentation is not a multiple of four\nx.py:4:2: E117 over-indented"

	ex := Extract(pipeline.LangPython, test, lint)
	want := []pipeline.FailureEvent{
		{BugType: pipeline.BugTypeError, File: "x.py", Line: 4, Message: "unsupported operand"},
		{BugType: pipeline.BugLinting, File: "x.py", Line: 4, Message: "E111 indentation is not a multiple of four"},
	}
	if diff := cmp.Diff(want, ex.Failures); diff != "" {
		t.Errorf("Extract mismatch (-want +got):\n%s", diff)
	}
	if ex.TotalTests != 2 || ex.TestsPassed != 1 {
		t.Errorf("expected 1/2, got %d/%d", ex.TestsPassed, ex.TotalTests)
	}
}

func TestExtract_JavaScriptEmpty(t *testing.T) {
	ex := Extract(pipeline.LangJavaScript, "", "")
	if len(ex.Failures) != 0 || ex.TotalTests != 0 || ex.TestsPassed != 0 {
		t.Errorf("expected empty extraction, got %+v", ex)
	}
}

func TestMerge_RelativizesAndTakesFirstSummary(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "work", "run-1")
	parsed := []ParseResult{
		{Failures: []pipeline.FailureEvent{
			{BugType: pipeline.BugLogic, File: filepath.Join(root, "pkg", "calc.py"), Line: 3, Message: "assert 1 == 2"},
		}, Total: 5, Passed: 4, Counted: true},
		{Failures: []pipeline.FailureEvent{
			{BugType: pipeline.BugLogic, File: "pkg/calc.py", Line: 3, Message: "duplicate after relativizing"},
			{BugType: pipeline.BugLinting, File: "pkg/calc.py", Line: 9, Message: "B006 mutable default"},
		}, Total: 9, Passed: 9, Counted: true},
	}

	ex := Merge(root, parsed)
	want := []pipeline.FailureEvent{
		{BugType: pipeline.BugLogic, File: "pkg/calc.py", Line: 3, Message: "assert 1 == 2"},
		{BugType: pipeline.BugLinting, File: "pkg/calc.py", Line: 9, Message: "B006 mutable default"},
	}
	if diff := cmp.Diff(want, ex.Failures); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
	if ex.TotalTests != 5 || ex.TestsPassed != 4 {
		t.Errorf("expected counters from the first summary, got %d/%d", ex.TestsPassed, ex.TotalTests)
	}
}

func TestMerge_UncountedResultsLeaveCountersZero(t *testing.T) {
	ex := Merge("", []ParseResult{{Total: 3, Passed: 3}})
	if ex.TotalTests != 0 || ex.TestsPassed != 0 || len(ex.Failures) != 0 {
		t.Errorf("expected empty extraction, got %+v", ex)
	}
}
