package checks

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// UnknownFile is recorded when a failure block carries no stack frame.
const UnknownFile = "unknown"

var (
	jestErrorRe = regexp.MustCompile(`(TypeError|SyntaxError|ReferenceError|Error):\s+([^\n]+)`)
	jestFrameRe = regexp.MustCompile(`at .+\(([^:)]+):(\d+):`)
	jestCountRe = regexp.MustCompile(`Tests:\s+(?:(\d+) failed,\s+)?(\d+) passed(?:,\s+(\d+) total)?`)
)

const jestMarker = "●"

// ClassifyJSError maps a JavaScript error name to a bug type.
func ClassifyJSError(etype string) string {
	switch etype {
	case "TypeError":
		return pipeline.BugTypeError
	case "SyntaxError":
		return pipeline.BugSyntax
	case "ReferenceError":
		return pipeline.BugImport
	default:
		return pipeline.BugLogic
	}
}

// JestParser parses jest's default reporter. Each "●" block contributes at most
// one failure: the first error line after the title, located by the first stack frame.
type JestParser struct{}

func (p *JestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	output := combine(stdout, stderr)

	var failures []pipeline.FailureEvent
	for _, block := range jestBlocks(output) {
		// The title line never counts as the error line.
		nl := strings.IndexByte(block, '\n')
		if nl < 0 {
			continue
		}
		body := block[nl+1:]
		m := jestErrorRe.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		f := pipeline.FailureEvent{
			BugType: ClassifyJSError(m[1]),
			File:    UnknownFile,
			Line:    0,
			Message: strings.TrimSpace(m[2]),
		}
		if fm := jestFrameRe.FindStringSubmatch(body); fm != nil {
			f.File = cleanPath(fm[1])
			f.Line = atoi(fm[2])
		}
		failures = append(failures, f)
	}

	total, passed, counted := countJest(output)
	return ParseResult{
		Failures: failures,
		Total:    total,
		Passed:   passed,
		Counted:  counted,
		Summary:  fmt.Sprintf("%d failure(s), %d/%d tests passed", len(failures), passed, total),
	}
}

// jestBlocks splits output at each "●" marker; text before the first marker is dropped.
func jestBlocks(output string) []string {
	parts := strings.Split(output, jestMarker)
	if len(parts) < 2 {
		return nil
	}
	blocks := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		blocks = append(blocks, strings.TrimLeft(p, " \t"))
	}
	return blocks
}

// countJest reads "Tests: 2 failed, 5 passed, 7 total".
func countJest(output string) (total, passed int, counted bool) {
	m := jestCountRe.FindStringSubmatch(output)
	if m == nil {
		return 0, 0, false
	}
	failed := atoi(m[1])
	passed = atoi(m[2])
	total = atoi(m[3])
	if m[3] == "" {
		total = passed + failed
	}
	return total, passed, true
}
