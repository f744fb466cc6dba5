package checks

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// ParseResult holds the normalized output from a parser.
type ParseResult struct {
	Failures []pipeline.FailureEvent `json:"failures"`
	Total    int                     `json:"total"`
	Passed   int                     `json:"passed"`
	Counted  bool                    `json:"counted"` // a summary line was recognized
	Summary  string                  `json:"summary"`
}

// Parser converts raw command output into a structured ParseResult.
// Parsers are pure: the same text always yields the same result.
type Parser interface {
	Parse(stdout string, stderr string, exitCode int) ParseResult
}

// parsers maps the names accepted in tool config to implementations.
var parsers = map[string]Parser{
	"pytest":         &PytestParser{},
	"flake8":         &Flake8Parser{},
	"jest":           &JestParser{},
	"eslint-compact": &ESLintCompactParser{},
	"generic":        &GenericParser{},
}

// ParserFor returns the named parser, falling back to the generic parser.
func ParserFor(name string) Parser {
	if p, ok := parsers[name]; ok {
		return p
	}
	return parsers["generic"]
}

// ParserNames lists the recognized parser names.
func ParserNames() []string {
	return []string{"pytest", "flake8", "jest", "eslint-compact", "generic"}
}

// combine joins stdout and stderr the way the tools interleave them on a terminal.
func combine(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	return stdout + "\n" + stderr
}

// cleanPath normalizes tool-reported paths so "./a.py" and "a.py" dedup together.
func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == UnknownFile {
		return p
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
