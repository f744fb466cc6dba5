package fixer

import (
	"strings"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// Rule descriptions.
const (
	IndentDescription = "fix indentation to use 4 spaces consistently"
	ImportDescription = "remove the unused import statement"
)

// ApplyRule rewrites one source line with the deterministic rule for bugType.
// Lines keep their original line ending. Every rule is idempotent: applying it
// to its own output returns the output unchanged. Bug types without a rule get
// DefaultDescription and the line back untouched.
func ApplyRule(bugType, language, line string) (desc string, fixed string) {
	switch bugType {
	case pipeline.BugIndentation:
		return IndentDescription, expandLeadingTabs(line)
	case pipeline.BugImport:
		return ImportDescription, commentOut(line, language)
	}
	return DefaultDescription, line
}

// expandLeadingTabs replaces every tab inside the leading whitespace with four spaces.
func expandLeadingTabs(line string) string {
	body := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(body)]
	if !strings.Contains(indent, "\t") {
		return line
	}
	return strings.ReplaceAll(indent, "\t", "    ") + body
}

// commentOut disables an import line with the language's line comment marker.
func commentOut(line, language string) string {
	marker := "#"
	if language == pipeline.LangJavaScript || language == pipeline.LangTypeScript {
		marker = "//"
	}

	content, ending := splitEnding(line)
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || strings.HasPrefix(trimmed, marker) {
		return line
	}
	return marker + " " + strings.TrimRight(content, " \t") + "  " + marker + " removed unused import" + ending
}

func splitEnding(line string) (content, ending string) {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return line[:len(line)-2], "\r\n"
	case strings.HasSuffix(line, "\n"):
		return line[:len(line)-1], "\n"
	}
	return line, ""
}
