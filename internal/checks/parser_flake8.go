package checks

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// "path:row:col: CODE text", the format flake8 is invoked with.
var flake8Re = regexp.MustCompile(`^([^:]+):(\d+):\d+:\s*([A-Z]+\d+)\s+(.+)`)

// Flake8Parser parses flake8 output. Every finding is LINTING regardless of code.
type Flake8Parser struct{}

func (p *Flake8Parser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var failures []pipeline.FailureEvent
	for _, line := range strings.Split(stdout, "\n") {
		m := flake8Re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		failures = append(failures, pipeline.FailureEvent{
			BugType: pipeline.BugLinting,
			File:    cleanPath(m[1]),
			Line:    atoi(m[2]),
			Message: m[3] + " " + strings.TrimSpace(m[4]),
		})
	}
	return ParseResult{
		Failures: failures,
		Summary:  fmt.Sprintf("%d lint finding(s)", len(failures)),
	}
}
