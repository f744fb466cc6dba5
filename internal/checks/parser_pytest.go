package checks

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

var (
	// "src/utils.py:15: SyntaxError: invalid syntax"
	pyErrorRe = regexp.MustCompile(`([^\s:]+\.py):(\d+):\s*([A-Za-z]+Error):\s*(.+)`)
	// "src/utils.py:15:4: E302 expected 2 blank lines"
	pyLintRe = regexp.MustCompile(`([^\s:]+\.py):(\d+):\d+:\s*([A-Z]+\d+)\s+(.+)`)

	pyPassedRe = regexp.MustCompile(`(\d+) passed`)
	pyFailedRe = regexp.MustCompile(`(\d+) failed`)
)

// pythonErrors maps exception names to bug types. Unlisted exceptions are LOGIC.
var pythonErrors = map[string]string{
	"SYNTAXERROR":         pipeline.BugSyntax,
	"INDENTATIONERROR":    pipeline.BugIndentation,
	"IMPORTERROR":         pipeline.BugImport,
	"MODULENOTFOUNDERROR": pipeline.BugImport,
	"TYPEERROR":           pipeline.BugTypeError,
	"NAMEERROR":           pipeline.BugLogic,
	"ATTRIBUTEERROR":      pipeline.BugLogic,
}

// ClassifyPythonError maps a Python exception name to a bug type.
func ClassifyPythonError(etype string) string {
	if bt, ok := pythonErrors[strings.ToUpper(etype)]; ok {
		return bt
	}
	return pipeline.BugLogic
}

// PytestParser parses pytest --tb=short output. Lines carrying an embedded
// lint diagnostic are also picked up and classified as LINTING.
type PytestParser struct{}

func (p *PytestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	output := combine(stdout, stderr)

	var failures []pipeline.FailureEvent
	for _, line := range strings.Split(output, "\n") {
		if m := pyErrorRe.FindStringSubmatch(line); m != nil {
			failures = append(failures, pipeline.FailureEvent{
				BugType: ClassifyPythonError(m[3]),
				File:    cleanPath(m[1]),
				Line:    atoi(m[2]),
				Message: strings.TrimSpace(m[4]),
			})
			continue
		}
		if m := pyLintRe.FindStringSubmatch(line); m != nil {
			failures = append(failures, pipeline.FailureEvent{
				BugType: pipeline.BugLinting,
				File:    cleanPath(m[1]),
				Line:    atoi(m[2]),
				Message: m[3] + " " + strings.TrimSpace(m[4]),
			})
		}
	}

	total, passed, counted := countPython(output)
	return ParseResult{
		Failures: failures,
		Total:    total,
		Passed:   passed,
		Counted:  counted,
		Summary:  fmt.Sprintf("%d failure(s), %d/%d tests passed", len(failures), passed, total),
	}
}

// countPython reads "N passed" / "N failed" from a pytest summary line.
func countPython(output string) (total, passed int, counted bool) {
	failed := 0
	if m := pyPassedRe.FindStringSubmatch(output); m != nil {
		passed = atoi(m[1])
		counted = true
	}
	if m := pyFailedRe.FindStringSubmatch(output); m != nil {
		failed = atoi(m[1])
		counted = true
	}
	return passed + failed, passed, counted
}
