package checks

import "github.com/lucasnoah/healfactory/internal/pipeline"

// Dedupe drops failures whose (bug_type, file, line) was already seen.
// The first occurrence wins and insertion order is preserved.
func Dedupe(failures []pipeline.FailureEvent) []pipeline.FailureEvent {
	seen := make(map[pipeline.FailureKey]bool, len(failures))
	out := make([]pipeline.FailureEvent, 0, len(failures))
	for _, f := range failures {
		k := f.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

// Extraction is the pure result of parsing captured diagnostic text.
type Extraction struct {
	Failures    []pipeline.FailureEvent
	TotalTests  int
	TestsPassed int
}

// Merge combines parsed tool results in order. File paths are made relative
// to root when root is set. The first result carrying a recognized summary
// supplies the test counters, and failures are deduplicated last so earlier
// results win.
func Merge(root string, parsed []ParseResult) Extraction {
	var all []pipeline.FailureEvent
	ex := Extraction{}
	counted := false
	for _, r := range parsed {
		for _, f := range r.Failures {
			if root != "" {
				f.File = relativize(root, f.File)
			}
			all = append(all, f)
		}
		if r.Counted && !counted {
			ex.TotalTests, ex.TestsPassed = r.Total, r.Passed
			counted = true
		}
	}
	ex.Failures = Dedupe(all)
	return ex
}

// Extract parses test output and lint output for a language. Test output is read with
// the language's test dialect, lint output with its linter dialect. Missing summary
// lines leave both counters at zero.
func Extract(language, testOutput, lintOutput string) Extraction {
	var testP, lintP Parser
	switch language {
	case pipeline.LangPython:
		testP, lintP = &PytestParser{}, &Flake8Parser{}
	default:
		testP, lintP = &JestParser{}, &ESLintCompactParser{}
	}

	var parsed []ParseResult
	if testOutput != "" {
		parsed = append(parsed, testP.Parse(testOutput, "", 1))
	}
	if lintOutput != "" {
		parsed = append(parsed, lintP.Parse(lintOutput, "", 1))
	}
	return Merge("", parsed)
}
