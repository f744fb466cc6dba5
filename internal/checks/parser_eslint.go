package checks

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// "path/file.js: line 10, col 5, Error - message (rule)"
var eslintCompactRe = regexp.MustCompile(`^([^:]+):\s+line (\d+),\s+col \d+,\s+(?:Error|Warning)\s+-\s+(.+?)(?:\s+\(.+\))?$`)

// ESLintCompactParser parses `eslint --format compact` output into LINTING failures.
type ESLintCompactParser struct{}

func (p *ESLintCompactParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var failures []pipeline.FailureEvent
	for _, line := range strings.Split(stdout, "\n") {
		m := eslintCompactRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		failures = append(failures, pipeline.FailureEvent{
			BugType: pipeline.BugLinting,
			File:    cleanPath(m[1]),
			Line:    atoi(m[2]),
			Message: strings.TrimSpace(m[3]),
		})
	}
	return ParseResult{
		Failures: failures,
		Summary:  fmt.Sprintf("%d lint finding(s)", len(failures)),
	}
}
